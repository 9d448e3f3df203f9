package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssetNameFromPath(t *testing.T) {
	cases := map[string]string{
		"/data/exports/survey-2024.csv": "survey_2024_csv",
		"Export.CSV":                    "export_csv",
		"deaths":                        "deaths",
		"2024.csv":                      "f_2024_csv",
	}
	for path, want := range cases {
		assert.Equal(t, want, assetNameFromPath(path), "path %q", path)
	}
}
