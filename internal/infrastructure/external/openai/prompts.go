package openai

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// PromptConfig holds the prompts and model parameters used by the receipt extractor
type PromptConfig struct {
	ReceiptExtraction struct {
		Temperature  float32 `yaml:"temperature"`
		MaxTokens    int     `yaml:"max_tokens"`
		System       string  `yaml:"system"`
		UserTemplate string  `yaml:"user_template"`
	} `yaml:"receipt_extraction"`
}

const defaultSystemPrompt = "Eres un asistente que lee facturas y recibos de proveedores de restaurantes. " +
	"Respondes siempre con un único objeto JSON válido, sin texto adicional."

const defaultUserTemplate = `Extrae los datos del recibo en {{.Pages}} imagen(es).
Devuelve un objeto JSON con exactamente estas claves:
- "supplier_name": nombre del proveedor, o null si no se lee
- "total": total a pagar como número, o null
- "date": fecha de emisión en formato YYYY-MM-DD, o null
- "invoice_number": número de factura, o null
- "items": lista de productos con "description", "quantity", "unit", "unit_price" y "subtotal" (número o null)
No inventes valores que no aparezcan en la imagen.`

// DefaultPrompts returns the built-in prompts used when no prompts file is configured
func DefaultPrompts() *PromptConfig {
	var p PromptConfig
	p.ReceiptExtraction.Temperature = 0.1
	p.ReceiptExtraction.MaxTokens = 4096
	p.ReceiptExtraction.System = defaultSystemPrompt
	p.ReceiptExtraction.UserTemplate = defaultUserTemplate
	return &p
}

// LoadPrompts loads prompt configuration from YAML file.
// Fields missing from the file keep their built-in values.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	prompts := DefaultPrompts()
	if err := yaml.Unmarshal(data, prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	if _, err := template.New("prompt").Parse(prompts.ReceiptExtraction.UserTemplate); err != nil {
		return nil, fmt.Errorf("invalid user_template: %w", err)
	}

	return prompts, nil
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
