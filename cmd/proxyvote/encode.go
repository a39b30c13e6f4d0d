package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"proxyvote/ballot"
	"proxyvote/models"
	"proxyvote/validate"
)

var encodeArgs struct {
	votes  []int
	decode string
	count  int
}

var packedArgs struct {
	start uint64
	end   uint64
	flags []string
}

func init() {
	encodeCmd.Flags().IntSliceVar(&encodeArgs.votes, "votes", nil, "Range votes in [-3, 3]")
	encodeCmd.Flags().StringVar(&encodeArgs.decode, "decode", "", "Decode this vote data instead")
	encodeCmd.Flags().IntVar(&encodeArgs.count, "count", models.MaxRangeVotes, "Number of votes to decode")
	rootCmd.AddCommand(encodeCmd)

	rootCmd.AddCommand(flagsCmd)

	packedCmd.Flags().Uint64Var(&packedArgs.start, "start", 0, "Submission window start (unix seconds)")
	packedCmd.Flags().Uint64Var(&packedArgs.end, "end", 0, "Submission window end (unix seconds)")
	packedCmd.Flags().StringSliceVar(&packedArgs.flags, "flags", []string{"use-signed"}, "Submission flags, by name or value")
	rootCmd.AddCommand(packedCmd)
}

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode range votes as 32-byte vote data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if encodeArgs.decode != "" {
			raw, err := validate.VoteData(encodeArgs.decode)
			if err != nil {
				return err
			}
			votes, err := ballot.DecodeRange3VoteData(models.VotePayload(raw), encodeArgs.count)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), votes)
		}

		payload, err := ballot.GenRange3VoteData(encodeArgs.votes)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), payload.Hex())
		return nil
	},
}

var flagsCmd = &cobra.Command{
	Use:   "flags [flag...]",
	Short: "Combine submission flags into submission bits",
	RunE: func(cmd *cobra.Command, args []string) error {
		bits, err := submissionBits(args)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d (0x%04x)\n", bits, uint16(bits))
		return nil
	},
}

var packedCmd = &cobra.Command{
	Use:   "packed",
	Short: "Build a packed ballot spec",
	RunE: func(cmd *cobra.Command, args []string) error {
		bits, err := submissionBits(packedArgs.flags)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ballot.MkPacked(packedArgs.start, packedArgs.end, bits).String())
		return nil
	},
}

// submissionBits resolves flag names (see models.SubmissionFlagNames) or
// numeric flag values and combines them.
func submissionBits(names []string) (models.SubmissionBits, error) {
	flags := make([]int, 0, len(names))
	for _, name := range names {
		if bit, ok := models.SubmissionFlagNames[name]; ok {
			flags = append(flags, int(bit))
			continue
		}
		v, err := strconv.Atoi(name)
		if err != nil {
			return 0, fmt.Errorf("unknown submission flag %q", name)
		}
		flags = append(flags, v)
	}
	return ballot.MkSubmissionBits(flags)
}
