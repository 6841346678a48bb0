// Command zeth is the thin host-side entry point for the stateless block
// validator: it loads a block, its parent header, and an execution witness
// from a JSON envelope, runs the core validator, and prints the resulting
// block hash. It does none of the interesting work itself — witness
// collection, the real EVM, and chain selection all live in the packages
// this command only wires together (see validator.Validator).
//
// Usage:
//
//	zeth -witness witness.json
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"

	"github.com/zeth-go/zeth/core"
	"github.com/zeth-go/zeth/core/types"
	"github.com/zeth-go/zeth/crypto"
	"github.com/zeth-go/zeth/log"
	"github.com/zeth-go/zeth/sparsestate"
	"github.com/zeth-go/zeth/validator"
)

var logger = log.New(slog.LevelInfo)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("zeth", flag.ContinueOnError)
	witnessPath := fs.String("witness", "", "path to the JSON witness envelope")
	chainID := fs.Int64("chainid", 1, "chain ID for signature verification")
	gasPriceGwei := fs.Int64("gasprice", 1, "flat gas price (gwei) charged by the stub executor")
	logLevel := fs.String("loglevel", "info", "log verbosity: debug, info, warn, error")
	logFormat := fs.String("logformat", "json", "log line format: json, text, color")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *witnessPath == "" {
		fmt.Fprintln(os.Stderr, "usage: zeth -witness witness.json")
		return 2
	}

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	switch *logFormat {
	case "json":
		logger = log.New(level)
	case "text":
		logger = log.NewWithFormat(level, os.Stderr, &log.TextFormatter{})
	case "color":
		logger = log.NewWithFormat(level, os.Stderr, &log.ColorFormatter{})
	default:
		fmt.Fprintf(os.Stderr, "log: unknown format %q\n", *logFormat)
		return 2
	}

	raw, err := os.ReadFile(*witnessPath)
	if err != nil {
		logger.Error("reading witness file", "err", err)
		return 1
	}

	bundle, err := decodeBundle(raw)
	if err != nil {
		logger.Error("decoding witness envelope", "err", err)
		return 1
	}

	spec := &core.ChainConfig{
		ChainID:       big.NewInt(*chainID),
		ShanghaiTime:  bundle.ChainSpec.ShanghaiTime,
		CancunTime:    bundle.ChainSpec.CancunTime,
		PragueTime:    bundle.ChainSpec.PragueTime,
		AmsterdamTime: bundle.ChainSpec.AmsterdamTime,
	}
	if err := spec.Validate(); err != nil {
		logger.Error("invalid chain spec", "err", err)
		return 1
	}

	gasPrice := new(big.Int).Mul(big.NewInt(*gasPriceGwei), big.NewInt(1_000_000_000))
	v := validator.New(spec, validator.NewStubExecutor(gasPrice))

	// Signer recovery is the host's job: recover each transaction's public
	// key once here, so the validator core only has to verify signatures
	// against the supplied keys.
	signers, sigErrs := crypto.RecoverSignerKeys(bundle.Block.Transactions(), uint64(*chainID))
	for i, sigErr := range sigErrs {
		if sigErr != nil {
			logger.Error("recovering transaction signer", "tx", i, "err", sigErr)
			return 1
		}
	}

	hash, err := v.ValidateBlock(bundle.Block, bundle.Parent, signers, bundle.Witness)
	if err != nil {
		logger.Error("block rejected", "stage", v.Stage(), "err", err)
		return 1
	}

	used, total := v.WitnessUtilization()
	logger.Info("block accepted", "stage", v.Stage(), "hash", hash.Hex(), "witness_nodes_used", used, "witness_nodes_total", total)
	fmt.Println(hash.Hex())
	return 0
}

// bundle is the decoded form of the JSON witness envelope: framing only,
// never imported by validator/sparsestate, which only ever see the
// RLP-decoded types.Block / types.Header / sparsestate.Witness values.
type bundle struct {
	Block     *types.Block
	Parent    *types.Header
	Witness   *sparsestate.Witness
	ChainSpec chainSpecJSON
}

// witnessEnvelope is the on-disk JSON shape: hex-encoded RLP for the block,
// parent header, every witness state node, and every bytecode, plus the
// ordered ancestor header RLPs. This framing is a host-side convenience,
// not a stable wire format.
type witnessEnvelope struct {
	Block     string        `json:"block"`
	Parent    string        `json:"parent"`
	State     []string      `json:"state"`
	Codes     []string      `json:"codes"`
	Headers   []string      `json:"headers"`
	ChainSpec chainSpecJSON `json:"chainSpec"`
}

type chainSpecJSON struct {
	ShanghaiTime  *uint64 `json:"shanghaiTime,omitempty"`
	CancunTime    *uint64 `json:"cancunTime,omitempty"`
	PragueTime    *uint64 `json:"pragueTime,omitempty"`
	AmsterdamTime *uint64 `json:"amsterdamTime,omitempty"`
}

func decodeBundle(raw []byte) (*bundle, error) {
	var env witnessEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parsing witness JSON: %w", err)
	}

	blockRLP, err := hex.DecodeString(env.Block)
	if err != nil {
		return nil, fmt.Errorf("decoding block hex: %w", err)
	}
	block, err := types.DecodeBlockRLP(blockRLP)
	if err != nil {
		return nil, fmt.Errorf("decoding block RLP: %w", err)
	}

	parentRLP, err := hex.DecodeString(env.Parent)
	if err != nil {
		return nil, fmt.Errorf("decoding parent hex: %w", err)
	}
	parent, err := types.DecodeHeaderRLP(parentRLP)
	if err != nil {
		return nil, fmt.Errorf("decoding parent RLP: %w", err)
	}

	state := make([][]byte, len(env.State))
	for i, s := range env.State {
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("decoding state node %d: %w", i, err)
		}
		state[i] = b
	}

	codes := make([][]byte, len(env.Codes))
	for i, s := range env.Codes {
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("decoding code %d: %w", i, err)
		}
		codes[i] = b
	}

	headers := make([]*types.Header, len(env.Headers))
	for i, s := range env.Headers {
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("decoding ancestor header %d: %w", i, err)
		}
		h, err := types.DecodeHeaderRLP(b)
		if err != nil {
			return nil, fmt.Errorf("parsing ancestor header %d: %w", i, err)
		}
		headers[i] = h
	}

	return &bundle{
		Block:  block,
		Parent: parent,
		Witness: &sparsestate.Witness{
			State:   state,
			Codes:   codes,
			Headers: headers,
		},
		ChainSpec: env.ChainSpec,
	}, nil
}
