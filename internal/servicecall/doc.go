// Package servicecall caches authentication tokens and performs REST calls
// that can carry them.
//
// A Token holds the request template for a token endpoint and the last
// credential it returned. Its value is fetched lazily: the first caller that
// finds it missing or expired performs the request, and concurrent callers
// wait for that single in-flight refresh and share its outcome.
//
//	registry := servicecall.NewRegistry(client)
//	dispatcher := servicecall.NewDispatcher(registry, client)
//
//	tok, err := dispatcher.CreateToken(ctx, servicecall.TokenRequest{
//	  Method:  transport.MethodPost,
//	  URL:     "https://auth.example.com/oauth/token",
//	  Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
//	  Body:    &form,
//	})
//
//	res, err := dispatcher.Call(ctx, servicecall.CallRequest{
//	  TokenID: tok.ID(),
//	  Method:  transport.MethodGet,
//	  URL:     "https://api.example.com/v1/items",
//	})
//
// Credentials expire SafetyMargin before the lifetime announced by the token
// endpoint.
//
// # Errors
//
// Configuration problems (unsupported method, malformed headers, unknown
// token id) are returned as errors before any network attempt. Remote and
// transport failures are values: a transport.Result with its status, or a
// *FetchError recorded on the Token.
package servicecall
