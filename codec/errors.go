package codec

import "jaysonic/rpcerr"

func parseError() error     { return rpcerr.New(rpcerr.ParseError) }
func invalidRequest() error { return rpcerr.New(rpcerr.InvalidRequest) }
func invalidParams() error  { return rpcerr.New(rpcerr.InvalidParams) }
