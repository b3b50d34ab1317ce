package template

import (
	"bytes"
	"fmt"
	"text/template"
)

func Parse(text string, fields any) (string, error) {
	tmpl, err := template.New("").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse: %w", err)
	}
	var result bytes.Buffer
	err = tmpl.Execute(&result, fields)
	if err != nil {
		return "", fmt.Errorf("execute: %w", err)
	}

	return result.String(), nil
}
