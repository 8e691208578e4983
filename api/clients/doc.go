// Package clients provides an HTTP client for the registry service.
//
// RegistryClient signs mutating requests with a secp256k1 key and turns error
// responses back into the interfaces sentinel errors, so code written against
// the in-process registry can handle remote failures with errors.Is:
//
//	key, _ := crypto.HexToECDSA(os.Getenv("REGISTRY_KEY"))
//	client := clients.NewRegistryClient("http://localhost:8080", key)
//
//	if _, err := client.Submit(ctx, hash); err != nil {
//	    return err
//	}
//
//	valid, err := client.IsValid(ctx, hash)
//	if errors.Is(err, interfaces.ErrRejected) {
//	    // the owner rejected this contract
//	}
//
// RegistryClient also implements interfaces.IdentityOracle, which lets one
// registry delegate submitter checks to a remote one.
package clients
