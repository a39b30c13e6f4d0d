package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxyvote/models"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append(args, "--verbosity", "0"))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSubmissionBits(t *testing.T) {
	bits, err := submissionBits([]string{"use-signed", "is-testing"})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionUseSigned|models.SubmissionIsTesting, bits)

	bits, err = submissionBits([]string{"1", "use-encrypted"})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionBits(9), bits)

	_, err = submissionBits([]string{"use-signed", "2"})
	assert.Error(t, err)
	_, err = submissionBits([]string{"no-such-flag"})
	assert.Error(t, err)
}

func TestEncodeCommand(t *testing.T) {
	out, err := run(t, "", "encode", "--votes=1,2,-1")
	require.NoError(t, err)
	assert.Equal(t, "0x95"+strings.Repeat("0", 62)+"\n", out)
}

func TestPackedCommand(t *testing.T) {
	out, err := run(t, "", "packed", "--start", "1", "--end", "2", "--flags", "use-signed")
	require.NoError(t, err)
	// 2<<128 | 1<<64 | 2
	assert.Equal(t, "680564733841876926945195958937245974530\n", out)
}

func TestSignThenVerifyCommands(t *testing.T) {
	signed, err := run(t, "", "sign",
		"--key", testKeyHex,
		"--ballot", "0x6e6c5875a8c41d9a9e5f8fbd25bd7f981b0e0557a8be4c13b1a3e5d6263e1ea1",
		"--seq", "3",
		"--votes=3,0,-3",
	)
	require.NoError(t, err)
	assert.Contains(t, signed, `"proxyReq"`)

	out, err := run(t, signed, "verify", "--voter", "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	require.NoError(t, err)
	assert.Contains(t, out, `"valid": true`)

	_, err = run(t, signed, "verify", "--voter", "0x0000000000000000000000000000000000000001")
	assert.Error(t, err)
}
