package bank

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeWallet AccountSubType = iota
	SubTypeFrozen     // locked under a vote-escrow position
	SubTypeCollateral // posted against open perp positions

	// System sub-types
	SubTypeSystemLPVault       // house pool deposits plus trader losses
	SubTypeSystemFees          // trading and LP fees awaiting distribution
	SubTypeSystemRewardPool    // staking reward pool funds (entity = pool id)
	SubTypeSystemEpochReward   // protocol rewards for one epoch (entity = epoch)
	SubTypeSystemTreasury      // expired rewards and admin sweeps
	SubTypeSystemShareSupply   // equity leg for LP share mint/burn
	SubTypeSystemEscrowedMint  // equity leg for esMKL/preMKL issuance

	// External sub-types
	SubTypeExternalDeposits
	SubTypeExternalWithdrawals
)

// AssetID maps asset strings to numeric IDs for performance
type AssetID uint16

const (
	AssetUSDC AssetID = iota + 1
	AssetMKL
	AssetEsMKL
	AssetPreMKL
	AssetMKLP
)

var (
	assetToID = map[string]AssetID{
		"USDC":   AssetUSDC,
		"MKL":    AssetMKL,
		"esMKL":  AssetEsMKL,
		"preMKL": AssetPreMKL,
		"MKLP":   AssetMKLP,
	}
	idToAsset = map[AssetID]string{
		AssetUSDC:   "USDC",
		AssetMKL:    "MKL",
		AssetEsMKL:  "esMKL",
		AssetPreMKL: "preMKL",
		AssetMKLP:   "MKLP",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// AccountKey is the in-memory key for balance tracking (21 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for users, name/epoch bytes for system accounts
	SubType  AccountSubType
	AssetID  AssetID
}

// NewUserAccountKey creates a key for user accounts
func NewUserAccountKey(userID uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewSystemAccountKey creates a key for system accounts
func NewSystemAccountKey(name string, subType AccountSubType, assetID AssetID) AccountKey {
	var entityID [16]byte
	copy(entityID[:], []byte(name))
	return AccountKey{
		Scope:    AccountScopeSystem,
		EntityID: entityID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewEpochRewardKey creates the per-epoch protocol reward account key.
func NewEpochRewardKey(epoch uint64, assetID AssetID) AccountKey {
	return NewSystemAccountKey(fmt.Sprintf("epoch:%d", epoch), SubTypeSystemEpochReward, assetID)
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// MarshalText encodes the key as hex so it can serve as a JSON map key
// in snapshots. Layout: scope(1) | entityID(16) | subType(1) | assetID(2).
func (k AccountKey) MarshalText() ([]byte, error) {
	var raw [20]byte
	raw[0] = byte(k.Scope)
	copy(raw[1:17], k.EntityID[:])
	raw[17] = byte(k.SubType)
	binary.BigEndian.PutUint16(raw[18:20], uint16(k.AssetID))

	out := make([]byte, hex.EncodedLen(len(raw)))
	hex.Encode(out, raw[:])
	return out, nil
}

// UnmarshalText decodes a key produced by MarshalText.
func (k *AccountKey) UnmarshalText(text []byte) error {
	var raw [20]byte
	if hex.DecodedLen(len(text)) != len(raw) {
		return fmt.Errorf("account key: invalid length %d", len(text))
	}
	if _, err := hex.Decode(raw[:], text); err != nil {
		return fmt.Errorf("account key: %w", err)
	}

	k.Scope = AccountScope(raw[0])
	copy(k.EntityID[:], raw[1:17])
	k.SubType = AccountSubType(raw[17])
	k.AssetID = AssetID(binary.BigEndian.Uint16(raw[18:20]))
	return nil
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s:%s", uid.String(), k.subTypeName(), assetName)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeWallet:
		return "wallet"
	case SubTypeFrozen:
		return "frozen"
	case SubTypeCollateral:
		return "collateral"
	case SubTypeSystemLPVault:
		return "lp_vault"
	case SubTypeSystemFees:
		return "fees"
	case SubTypeSystemRewardPool:
		return "reward_pool"
	case SubTypeSystemEpochReward:
		return "epoch_reward"
	case SubTypeSystemTreasury:
		return "treasury"
	case SubTypeSystemShareSupply:
		return "share_supply"
	case SubTypeSystemEscrowedMint:
		return "escrowed_mint"
	case SubTypeExternalDeposits:
		return "deposits"
	case SubTypeExternalWithdrawals:
		return "withdrawals"
	default:
		return "unknown"
	}
}
