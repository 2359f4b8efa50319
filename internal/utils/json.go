package utils

import (
	"os"
	"regexp"
)

var jsonComments = regexp.MustCompile("(?s)//.*?\n|/\\*.*?\\*/")

// GetJsonData reads a JSON file and strips C style comments from it.
func GetJsonData(filePath string) ([]byte, error) {
	if _, err := os.Stat(filePath); err != nil {
		return []byte{}, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return data, err
	}

	return jsonComments.ReplaceAll(data, nil), nil
}
