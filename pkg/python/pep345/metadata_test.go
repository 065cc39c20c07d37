package pep345_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pipcache/pkg/python/pep345"
)

func TestParseVersionSpecifier(t *testing.T) {
	type TestCase struct {
		Input     string
		OutputVal pep345.VersionSpecifier
		OutputErr string
	}
	testcases := []TestCase{
		{"2.5", pep345.VersionSpecifier{{pep345.CmpOpEQ, "2.5"}}, ""},
		{"==2.5", pep345.VersionSpecifier{{pep345.CmpOpEQ, "2.5"}}, ""},
		{"===2.5.1+local", pep345.VersionSpecifier{{pep345.CmpOpArbitrary, "2.5.1+local"}}, ""},
		{
			">=1.0,!=1.5,<2.0",
			pep345.VersionSpecifier{
				{pep345.CmpOpGE, "1.0"},
				{pep345.CmpOpNE, "1.5"},
				{pep345.CmpOpLT, "2.0"},
			},
			"",
		},
		{"~=2.5", nil, `pep345.ParseVersionSpecifier: pep440.ParseVersion: invalid version: "~=2.5"`},
	}
	t.Parallel()
	for i, tc := range testcases {
		tc := tc
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			t.Parallel()
			spec, err := pep345.ParseVersionSpecifier(tc.Input)
			if tc.OutputErr != "" {
				assert.EqualError(t, err, tc.OutputErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.OutputVal, spec)
			}
		})
	}
}

func TestVersionSpecifierClauseString(t *testing.T) {
	t.Parallel()
	spec, err := pep345.ParseVersionSpecifier("==1.0,!=1.5")
	require.NoError(t, err)
	assert.Equal(t, "==1.0,!=1.5", spec.String())
}

func TestParsedVersionRejectsArbitrary(t *testing.T) {
	t.Parallel()
	spec, err := pep345.ParseVersionSpecifier("===1.0")
	require.NoError(t, err)
	_, err = spec[0].ParsedVersion()
	assert.Error(t, err)
}
