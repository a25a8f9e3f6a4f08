package drift

import (
	"github.com/gagliardetto/solana-go"
)

func u16Seed(v uint16) []byte {
	b := make([]byte, 2)
	le.PutUint16(b, v)
	return b
}

func findAddress(programID solana.PublicKey, seeds ...[]byte) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(seeds, programID)
	return addr, err
}

func StatePDA(programID solana.PublicKey) (solana.PublicKey, error) {
	return findAddress(programID, []byte("drift_state"))
}

func SignerPDA(programID solana.PublicKey) (solana.PublicKey, error) {
	return findAddress(programID, []byte("drift_signer"))
}

// UserPDA derives the sub-account address for (authority, subAccountID)
func UserPDA(programID, authority solana.PublicKey, subAccountID uint16) (solana.PublicKey, error) {
	return findAddress(programID, []byte("user"), authority.Bytes(), u16Seed(subAccountID))
}

func UserStatsPDA(programID, authority solana.PublicKey) (solana.PublicKey, error) {
	return findAddress(programID, []byte("user_stats"), authority.Bytes())
}

func SpotMarketPDA(programID solana.PublicKey, marketIndex uint16) (solana.PublicKey, error) {
	return findAddress(programID, []byte("spot_market"), u16Seed(marketIndex))
}

func SpotMarketVaultPDA(programID solana.PublicKey, marketIndex uint16) (solana.PublicKey, error) {
	return findAddress(programID, []byte("spot_market_vault"), u16Seed(marketIndex))
}

func PerpMarketPDA(programID solana.PublicKey, marketIndex uint16) (solana.PublicKey, error) {
	return findAddress(programID, []byte("perp_market"), u16Seed(marketIndex))
}
