package gateway

import "context"

// Session is an authenticated editor session that can hand out its
// bearer token without blocking.
type Session interface {
	CurrentToken() (token string, ok bool)
}

// TokenExchanger obtains a bearer token from a remote exchange function
// when no session is available.
type TokenExchanger interface {
	ExchangeToken(ctx context.Context) (string, error)
}

// StaticSession is a Session holding a fixed token. The empty value
// reports no session.
type StaticSession string

func (s StaticSession) CurrentToken() (string, bool) {
	return string(s), s != ""
}

// ExchangerFunc adapts a function to TokenExchanger.
type ExchangerFunc func(ctx context.Context) (string, error)

func (f ExchangerFunc) ExchangeToken(ctx context.Context) (string, error) {
	return f(ctx)
}
