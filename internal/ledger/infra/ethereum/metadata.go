package ethereum

import (
	"context"
	"fmt"

	gethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"vaultbank.com/internal/ledger/domain"
)

// Metadata 查询 ERC-20 代币自身的 decimals()/symbol()
// 注册资产时用，保证精度永远和链上一致而不是人工填写
type Metadata struct {
	client *Client
}

var _ domain.AssetMetadata = (*Metadata)(nil)

func NewMetadata(client *Client) *Metadata {
	return &Metadata{client: client}
}

func (m *Metadata) Query(ctx context.Context, assetID string) (uint8, string, error) {
	addr := common.HexToAddress(assetID)

	decOut, err := m.call(ctx, addr, "decimals")
	if err != nil {
		return 0, "", fmt.Errorf("query decimals failed: %w", err)
	}
	decimals, ok := decOut[0].(uint8)
	if !ok {
		return 0, "", fmt.Errorf("unexpected decimals type %T", decOut[0])
	}

	symOut, err := m.call(ctx, addr, "symbol")
	if err != nil {
		return 0, "", fmt.Errorf("query symbol failed: %w", err)
	}
	symbol, ok := symOut[0].(string)
	if !ok {
		return 0, "", fmt.Errorf("unexpected symbol type %T", symOut[0])
	}

	return decimals, symbol, nil
}

func (m *Metadata) call(ctx context.Context, addr common.Address, method string) ([]interface{}, error) {
	input, err := m.client.erc20ABI.Pack(method)
	if err != nil {
		return nil, err
	}
	ret, err := m.client.eth.CallContract(ctx, gethereum.CallMsg{To: &addr, Data: input}, nil)
	if err != nil {
		return nil, err
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("no code at %s", addr.Hex())
	}
	return m.client.erc20ABI.Unpack(method, ret)
}
