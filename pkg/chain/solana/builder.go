package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	"wallet-engine/pkg/types"
)

func nativeTransferIxs(from, to solana.PublicKey, lamports uint64) []solana.Instruction {
	return []solana.Instruction{
		system.NewTransferInstruction(lamports, from, to).Build(),
	}
}

// tokenTransferIxs moves amount from source to the recipient's associated
// account, creating it first when the resolver found none
func tokenTransferIxs(owner, source solana.PublicKey, dest *ATA, amount uint64, decimals uint8) []solana.Instruction {
	var ixs []solana.Instruction
	if !dest.Exists {
		ixs = append(ixs, associatedtokenaccount.NewCreateInstruction(owner, dest.Owner, dest.Mint).Build())
	}
	ixs = append(ixs, token.NewTransferCheckedInstruction(
		amount,
		decimals,
		source,
		dest.Mint,
		dest.Address,
		owner,
		[]solana.PublicKey{},
	).Build())
	return ixs
}

func newTx(ixs []solana.Instruction, blockhash solana.Hash, payer solana.PublicKey) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}

// signAs fills the key's signature slot only. Aggregator transactions may
// list other required signers whose slots are left as received.
func signAs(tx *solana.Transaction, key solana.PrivateKey) error {
	pub := key.PublicKey()
	required := int(tx.Message.Header.NumRequiredSignatures)

	slot := -1
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(pub) {
			slot = i
			break
		}
	}
	if slot < 0 {
		return types.E(types.WalletUnavailable, "solana.sign", "%s is not a required signer", pub)
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	sig, err := key.Sign(msg)
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}

	for len(tx.Signatures) < required {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}
	tx.Signatures[slot] = sig
	return nil
}
