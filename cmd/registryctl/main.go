package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/contract-registry/api/clients"
	"github.com/ruteri/contract-registry/cmd/flags"
	"github.com/ruteri/contract-registry/interfaces"
	"github.com/urfave/cli/v2"
)

var flagTimeout = &cli.DurationFlag{
	Name:    "timeout",
	Value:   30 * time.Second,
	Usage:   "request timeout",
	EnvVars: []string{"REGISTRY_TIMEOUT"},
}

var flagOutput = &cli.StringFlag{
	Name:    "output",
	Aliases: []string{"o"},
	Usage:   "file to write to instead of stdout",
}

var flagLimit = &cli.IntFlag{
	Name:  "limit",
	Value: 100,
	Usage: "maximum number of events to print",
}

func main() {
	app := &cli.App{
		Name:  "registryctl",
		Usage: "Interact with a contract hash registry server",
		Flags: []cli.Flag{
			flags.ServerAddrFlag,
			flags.KeyFileFlag,
			flagTimeout,
		},
		Commands: []*cli.Command{
			{
				Name:      "keygen",
				Usage:     "Generate a secp256k1 key and print its address",
				ArgsUsage: "<key-file>",
				Action: func(cCtx *cli.Context) error {
					path := cCtx.Args().First()
					if path == "" {
						return fmt.Errorf("missing key file argument")
					}
					if _, err := os.Stat(path); err == nil {
						return fmt.Errorf("%s already exists", path)
					}

					key, err := crypto.GenerateKey()
					if err != nil {
						return fmt.Errorf("failed to generate key: %w", err)
					}
					if err := crypto.SaveECDSA(path, key); err != nil {
						return fmt.Errorf("failed to save key: %w", err)
					}
					fmt.Println(crypto.PubkeyToAddress(key.PublicKey).Hex())
					return nil
				},
			},
			{
				Name:  "address",
				Usage: "Print the address of the configured key",
				Action: func(cCtx *cli.Context) error {
					key, err := flags.LoadKey(cCtx.String(flags.KeyFileFlag.Name))
					if err != nil {
						return err
					}
					fmt.Println(crypto.PubkeyToAddress(key.PublicKey).Hex())
					return nil
				},
			},
			{
				Name:      "hash",
				Usage:     "Print the contract hash (keccak256) of a file",
				ArgsUsage: "<file>",
				Action: func(cCtx *cli.Context) error {
					data, err := os.ReadFile(cCtx.Args().First())
					if err != nil {
						return err
					}
					fmt.Println(interfaces.ComputeContractHash(data).String())
					return nil
				},
			},
			entryCommand("submit", "Submit a hash for approval", (*clients.RegistryClient).Submit),
			entryCommand("approve", "Approve a pending hash (owner only)", (*clients.RegistryClient).Approve),
			entryCommand("reject", "Reject a hash (owner only)", (*clients.RegistryClient).Reject),
			entryCommand("delete", "Delete an entry the owner submitted (owner only)", (*clients.RegistryClient).Delete),
			{
				Name:      "valid",
				Usage:     "Check whether a hash is approved",
				ArgsUsage: "<hash>",
				Action: func(cCtx *cli.Context) error {
					hash, err := hashArg(cCtx)
					if err != nil {
						return err
					}
					ctx, cancel := commandContext(cCtx)
					defer cancel()

					valid, err := readClient(cCtx).IsValid(ctx, hash)
					if err != nil {
						return err
					}
					return printJSON(map[string]any{"hash": hash, "valid": valid})
				},
			},
			{
				Name:      "show",
				Usage:     "Show the registry entry for a hash",
				ArgsUsage: "<hash>",
				Action: func(cCtx *cli.Context) error {
					hash, err := hashArg(cCtx)
					if err != nil {
						return err
					}
					ctx, cancel := commandContext(cCtx)
					defer cancel()

					entry, found, err := readClient(cCtx).Lookup(ctx, hash)
					if err != nil {
						return err
					}
					if !found {
						return fmt.Errorf("%w: %s", interfaces.ErrEntryNotFound, hash)
					}
					return printJSON(entry)
				},
			},
			{
				Name:  "kill",
				Usage: "Permanently disable the registry (owner only)",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Usage: "confirm the registry should be disabled"},
				},
				Action: func(cCtx *cli.Context) error {
					if !cCtx.Bool("yes") {
						return fmt.Errorf("kill is irreversible, pass --yes to confirm")
					}
					client, err := signingClient(cCtx)
					if err != nil {
						return err
					}
					ctx, cancel := commandContext(cCtx)
					defer cancel()

					if err := client.Kill(ctx); err != nil {
						return err
					}
					return printJSON(map[string]bool{"killed": true})
				},
			},
			{
				Name:      "upload",
				Usage:     "Store an artifact and submit its hash",
				ArgsUsage: "<file>",
				Action: func(cCtx *cli.Context) error {
					data, err := os.ReadFile(cCtx.Args().First())
					if err != nil {
						return err
					}
					client, err := signingClient(cCtx)
					if err != nil {
						return err
					}
					ctx, cancel := commandContext(cCtx)
					defer cancel()

					resp, err := client.UploadArtifact(ctx, data)
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:      "fetch",
				Usage:     "Download an artifact by hash",
				ArgsUsage: "<hash>",
				Flags:     []cli.Flag{flagOutput},
				Action: func(cCtx *cli.Context) error {
					hash, err := hashArg(cCtx)
					if err != nil {
						return err
					}
					ctx, cancel := commandContext(cCtx)
					defer cancel()

					data, err := readClient(cCtx).FetchArtifact(ctx, hash)
					if err != nil {
						return err
					}
					if out := cCtx.String(flagOutput.Name); out != "" {
						return os.WriteFile(out, data, 0o644)
					}
					_, err = os.Stdout.Write(data)
					return err
				},
			},
			{
				Name:  "owner",
				Usage: "Show the registry owner, policy and kill flag",
				Action: func(cCtx *cli.Context) error {
					ctx, cancel := commandContext(cCtx)
					defer cancel()

					resp, err := readClient(cCtx).Owner(ctx)
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:  "events",
				Usage: "Print recent registry events",
				Flags: []cli.Flag{flagLimit},
				Action: func(cCtx *cli.Context) error {
					ctx, cancel := commandContext(cCtx)
					defer cancel()

					resp, err := readClient(cCtx).Events(ctx, cCtx.Int(flagLimit.Name))
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type entryOperation func(*clients.RegistryClient, context.Context, interfaces.ContractHash) (bool, error)

func entryCommand(name, usage string, op entryOperation) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<hash>",
		Action: func(cCtx *cli.Context) error {
			hash, err := hashArg(cCtx)
			if err != nil {
				return err
			}
			client, err := signingClient(cCtx)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cCtx)
			defer cancel()

			result, err := op(client, ctx, hash)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"hash": hash, "result": result})
		},
	}
}

func hashArg(cCtx *cli.Context) (interfaces.ContractHash, error) {
	if cCtx.NArg() != 1 {
		return interfaces.ContractHash{}, fmt.Errorf("expected exactly one hash argument")
	}
	return interfaces.NewContractHashFromHex(cCtx.Args().First())
}

func commandContext(cCtx *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cCtx.Context, cCtx.Duration(flagTimeout.Name))
}

func readClient(cCtx *cli.Context) *clients.RegistryClient {
	return clients.NewRegistryClient(cCtx.String(flags.ServerAddrFlag.Name), nil, cCtx.Duration(flagTimeout.Name))
}

func signingClient(cCtx *cli.Context) (*clients.RegistryClient, error) {
	key, err := flags.LoadKey(cCtx.String(flags.KeyFileFlag.Name))
	if err != nil {
		return nil, err
	}
	return clients.NewRegistryClient(cCtx.String(flags.ServerAddrFlag.Name), key, cCtx.Duration(flagTimeout.Name)), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
