package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"proxyvote/ballot"
	"proxyvote/cryptoutil"
	"proxyvote/models"
	"proxyvote/proxy"
	"proxyvote/validate"
)

var signArgs struct {
	key          string
	ballotID     string
	sequence     uint64
	votes        []int
	voteData     string
	extra        string
	skipSeqCheck bool
}

var verifyArgs struct {
	file  string
	voter string
}

func init() {
	f := signCmd.Flags()
	f.StringVar(&signArgs.key, "key", "", "Voter private key (hex)")
	f.StringVar(&signArgs.ballotID, "ballot", "", "Ballot id (0x hex or decimal)")
	f.Uint64Var(&signArgs.sequence, "seq", 1, "Sequence number")
	f.IntSliceVar(&signArgs.votes, "votes", nil, "Range votes in [-3, 3], encoded as range-3 vote data")
	f.StringVar(&signArgs.voteData, "vote-data", "", "Raw 32-byte vote data (0x hex), instead of --votes")
	f.StringVar(&signArgs.extra, "extra", "0x", "Extra data (0x hex)")
	f.BoolVar(&signArgs.skipSeqCheck, "skip-seq-check", false, "Allow sequence 0")
	signCmd.MarkFlagRequired("key")
	signCmd.MarkFlagRequired("ballot")
	rootCmd.AddCommand(signCmd)

	verifyCmd.Flags().StringVar(&verifyArgs.file, "file", "-", "Signed ballot JSON file, - for stdin")
	verifyCmd.Flags().StringVar(&verifyArgs.voter, "voter", "", "Fail unless the ballot was signed by this address")
	rootCmd.AddCommand(verifyCmd)
}

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a proxy ballot",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := cryptoutil.ParsePrivateKey(signArgs.key)
		if err != nil {
			return fmt.Errorf("invalid private key: %w", err)
		}
		ballotID, err := validate.BallotID(signArgs.ballotID)
		if err != nil {
			return err
		}

		voteData := signArgs.voteData
		if voteData == "" {
			payload, err := ballot.GenRange3VoteData(signArgs.votes)
			if err != nil {
				return err
			}
			voteData = payload.Hex()
		}

		signed, err := proxy.Sign(cryptoutil.NewCryptoService(), key, proxy.Request{
			BallotID: ballotID,
			Sequence: signArgs.sequence,
			VoteData: voteData,
			Extra:    signArgs.extra,
		}, proxy.Options{SkipSequenceSizeCheck: signArgs.skipSeqCheck})
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), signed)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Recover the signer of a proxy ballot",
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = cmd.InOrStdin()
		if verifyArgs.file != "-" {
			f, err := os.Open(verifyArgs.file)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		var record models.ProxySignedBallot
		if err := json.NewDecoder(in).Decode(&record); err != nil {
			return fmt.Errorf("invalid signed ballot: %w", err)
		}

		res, err := proxy.Verify(cryptoutil.NewCryptoService(), &record)
		if err != nil {
			return err
		}
		if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}

		if verifyArgs.voter != "" {
			if !common.IsHexAddress(verifyArgs.voter) {
				return fmt.Errorf("invalid voter address %q", verifyArgs.voter)
			}
			if !res.SignedBy(common.HexToAddress(verifyArgs.voter)) {
				return fmt.Errorf("ballot was signed by %s, not %s", res.Address.Hex(), verifyArgs.voter)
			}
		}
		return nil
	},
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
