// Package vapor manages platform account sessions and the authenticator
// lifecycle for a local account store.
//
// The entry point is the [Engine], assembled through the [Builder]:
//
//	engine, err := vapor.New().
//		WithStore(fileStore).
//		WithClientFactory(newClient).
//		Build()
//
// [Engine.AttemptLogin] runs one login attempt and always resolves to a
// [LoginResult]: it prefers the silent OAuth-token path when the store
// holds session artifacts for the account, falls back to credentials,
// synthesizes guard codes from stored shared secrets, and persists exactly
// one store transaction per terminal outcome. The two-factor surface
// (EnableTwoFactor, FinalizeTwoFactor, RevokeTwoFactor, GenerateAuthCode)
// drives authenticator enrollment over the live session; only
// platform-confirmed transitions touch the store.
//
// Network transport is abstracted behind [CommunityClient]; the engine
// sequences calls and owns persistence, audit, and metrics.
package vapor
