package controllers

import (
	"context"
	"net/url"

	"tftrader/models"
)

//go:generate mockery --case=snake --name=ClientCtrl
//go:generate mockery --case=snake --name=CryptoCtrl
//go:generate mockery --case=snake --name=TgmCtrl
//go:generate mockery --case=snake --name=StreamCtrl

type ClientCtrl interface {
	Send(ctx context.Context, method string, url *url.URL, body []byte, useApiKey bool) ([]byte, error)
	Timestamp() int64
}

type CryptoCtrl interface {
	GetSignature(query string) string
}

type TgmCtrl interface {
	Send(text string) error
}

type StreamCtrl interface {
	Start(ctx context.Context)
	Stop()
	Subscribe(topics ...string)
	Out() <-chan []byte
	Resync() <-chan struct{}
	State() models.ConnectionState
}
