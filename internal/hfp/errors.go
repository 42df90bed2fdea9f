package hfp

import "github.com/nohands-go/gonohands/internal/herr"

var errHandshakeCindReadRejected = herr.New(herr.CommandRejected, "hfp",
	"AT+CIND? rejected by AG during handshake", nil)
