// Package authgate is a request-time OAuth2 authorization decision engine
// for web APIs. Given an inbound request and its session, it decides
// whether to let the request through to the wrapped endpoint, redirect the
// caller into an interactive or silent token-acquisition flow, or reject
// it.
//
// Two credential-presentation strategies are supported per endpoint:
//
//   - StrategyBearer: the caller presents an access token in the
//     Authorization header, or has one cached on its session from a prior
//     sign-in. Fallbacks walk through silent auth-code redemption, the
//     client-credentials grant, and finally interactive sign-in.
//   - StrategyAuthCode: the caller completed interactive sign-in and holds
//     an authorization code, redeemed silently and gated on the resulting
//     token's audience claim.
//
// The engine never issues tokens itself; it acquires and validates them
// against an upstream identity provider. Token signatures on the silent
// path are not re-verified locally (audience inspection only) because the
// tokens arrive over the authenticated token-endpoint channel; presented
// bearer tokens are verified in full by the auth package.
//
// Minimal wiring:
//
//	store := memorystore.New()
//	mgr, _ := sessions.NewManager(store)
//	authn, _ := auth.NewFromDiscovery(ctx, settings.IssuerURL(), settings.APIAppID)
//	mw, err := authgate.New(settings, authn, mgr, "https://api.example.com", "/api")
//	if err != nil {
//		log.Fatal(err)
//	}
//	mux.Handle("/api/", mw.Router())
//	mux.Handle("/api/hello", mw.Authenticate(authgate.StrategyBearer, helloHandler))
package authgate
