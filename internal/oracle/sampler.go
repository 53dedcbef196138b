package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
)

// RPCSampler reads gas price, base fee, and block number from an
// execution-layer RPC node. Gas values are reported in gwei.
type RPCSampler struct {
	client *ethclient.Client
}

// NewRPCSampler dials the RPC endpoint.
func NewRPCSampler(rpcURL string) (*RPCSampler, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", rpcURL, err)
	}
	return &RPCSampler{client: client}, nil
}

// Sample implements Sampler.
func (s *RPCSampler) Sample(ctx context.Context) (Sample, error) {
	header, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return Sample{}, fmt.Errorf("fetch head: %w", err)
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("suggest gas price: %w", err)
	}

	baseFee := big.NewInt(0)
	if header.BaseFee != nil {
		baseFee = header.BaseFee
	}

	gwei := big.NewInt(params.GWei)
	return Sample{
		GasPrice: new(big.Int).Div(gasPrice, gwei).Int64(),
		BaseFee:  new(big.Int).Div(baseFee, gwei).Int64(),
		Block:    header.Number.Uint64(),
	}, nil
}

// Close releases the RPC connection.
func (s *RPCSampler) Close() {
	s.client.Close()
}

// StaticSampler serves scripted samples, advancing the block each call.
// Used in development mode and tests when no RPC endpoint is set.
type StaticSampler struct {
	mu       sync.Mutex
	GasPrice int64
	BaseFee  int64
	Block    uint64
	Step     uint64
}

// Sample implements Sampler.
func (s *StaticSampler) Sample(_ context.Context) (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	step := s.Step
	if step == 0 {
		step = 1
	}
	s.Block += step
	return Sample{GasPrice: s.GasPrice, BaseFee: s.BaseFee, Block: s.Block}, nil
}
