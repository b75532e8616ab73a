package chain

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Function selectors for the ERC-8004 identity registry (an ERC-721 token
// with agent extensions). Derived from the canonical signatures at init so
// the constants cannot drift from the ABI.
var (
	selOwnerOf        = selector("ownerOf(uint256)")
	selTokenURI       = selector("tokenURI(uint256)")
	selGetAgentWallet = selector("getAgentWallet(uint256)")

	// ERC721NonexistentToken(uint256) custom error, OpenZeppelin v5.
	selNonexistentToken = selector("ERC721NonexistentToken(uint256)")
)

func selector(signature string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return "0x" + hex.EncodeToString(h.Sum(nil)[:4])
}

// encodeUint256Call builds eth_call data: 4-byte selector plus one
// left-padded uint256 argument.
func encodeUint256Call(sel string, v uint64) string {
	var arg [32]byte
	binary.BigEndian.PutUint64(arg[24:], v)
	return sel + hex.EncodeToString(arg[:])
}

func decodeHexData(result string) ([]byte, error) {
	trimmed := strings.TrimPrefix(result, "0x")
	if trimmed == "" {
		return nil, nil
	}
	data, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("chain: malformed hex return data: %w", err)
	}
	return data, nil
}

// decodeAddress decodes a single ABI-encoded address return value into a
// 0x-prefixed lowercase hex address.
func decodeAddress(result string) (string, error) {
	data, err := decodeHexData(result)
	if err != nil {
		return "", err
	}
	if len(data) < 32 {
		return "", fmt.Errorf("chain: address return too short (%d bytes)", len(data))
	}
	return "0x" + hex.EncodeToString(data[12:32]), nil
}

// zeroAddress is how the registry encodes "wallet not set".
const zeroAddress = "0x0000000000000000000000000000000000000000"

// decodeString decodes a single ABI-encoded dynamic string return value.
func decodeString(result string) (string, error) {
	data, err := decodeHexData(result)
	if err != nil {
		return "", err
	}
	if len(data) < 64 {
		return "", fmt.Errorf("chain: string return too short (%d bytes)", len(data))
	}
	// Word 0: offset to the string head; word at offset: byte length.
	offset := binary.BigEndian.Uint64(data[24:32])
	if offset+32 > uint64(len(data)) {
		return "", fmt.Errorf("chain: string offset %d out of range", offset)
	}
	length := binary.BigEndian.Uint64(data[offset+24 : offset+32])
	start := offset + 32
	if start+length > uint64(len(data)) {
		return "", fmt.Errorf("chain: string length %d out of range", length)
	}
	return string(data[start : start+length]), nil
}

// decodeQuantity parses an eth_blockNumber style hex quantity.
func decodeQuantity(result string) (uint64, error) {
	trimmed := strings.TrimPrefix(result, "0x")
	if trimmed == "" {
		return 0, fmt.Errorf("chain: empty quantity")
	}
	v, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("chain: malformed quantity %q: %w", result, err)
	}
	return v, nil
}
