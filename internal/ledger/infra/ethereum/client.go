// Package ethereum 实现链上网关：喂价读取、代币元数据、托管转账
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Chainlink 聚合器接口：latestRoundData / decimals
const aggregatorABI = `[
{"inputs":[],"name":"latestRoundData","outputs":[{"name":"roundId","type":"uint80"},{"name":"answer","type":"int256"},{"name":"startedAt","type":"uint256"},{"name":"updatedAt","type":"uint256"},{"name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}]`

// ERC-20 网关需要的最小方法集
const erc20ABI = `[
{"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}]`

// Client 持有节点连接和签名身份，被 Oracle / Metadata / Transfer 三个网关共享
type Client struct {
	eth        *ethclient.Client
	chainID    *big.Int
	privateKey *ecdsa.PrivateKey
	custody    common.Address // 托管账户地址 (由私钥推导)

	aggABI   abi.ABI
	erc20ABI abi.ABI
}

// Dial 连接节点并推导托管账户
// privateKeyHex 为空时只能做只读操作 (喂价 / 元数据)，转账会失败
func Dial(ctx context.Context, nodeURL, privateKeyHex string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, nodeURL)
	if err != nil {
		return nil, fmt.Errorf("dial node failed: %w", err)
	}
	// 获取 ChainID (防止重放攻击)
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chain id failed: %w", err)
	}

	c := &Client{eth: eth, chainID: chainID}

	c.aggABI, err = abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, err
	}
	c.erc20ABI, err = abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, err
	}

	if privateKeyHex != "" {
		pk, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse private key failed: %w", err)
		}
		pub, ok := pk.Public().(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("error casting public key to ECDSA")
		}
		c.privateKey = pk
		c.custody = crypto.PubkeyToAddress(*pub)
	}
	return c, nil
}

// Custody 托管账户地址
func (c *Client) Custody() common.Address { return c.custody }

func (c *Client) Close() { c.eth.Close() }
