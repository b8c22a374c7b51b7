package pricing

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	domain "github.com/fieldcraft/storefront/internal/domain"
)

// tablesFile mirrors the YAML layout of the pricing configuration shipped
// with the deployment. Multiplier and tax rate are strings so they parse
// exactly instead of through binary floats.
type tablesFile struct {
	Currency              string           `yaml:"currency"`
	DomesticZone          string           `yaml:"domestic_zone"`
	FreeShippingThreshold int64            `yaml:"free_shipping_threshold"`
	TaxRate               string           `yaml:"tax_rate"`
	Zones                 []zoneEntry      `yaml:"zones"`
	Methods               []methodEntry    `yaml:"methods"`
}

type zoneEntry struct {
	Code       string   `yaml:"code"`
	Multiplier string   `yaml:"multiplier"`
	Countries  []string `yaml:"countries"`
	Methods    []string `yaml:"methods"`
}

type methodEntry struct {
	ID                   string `yaml:"id"`
	Label                string `yaml:"label"`
	BasePrice            int64  `yaml:"base_price"`
	MaxWeightGrams       int64  `yaml:"max_weight_grams"`
	FreeShippingEligible bool   `yaml:"free_shipping_eligible"`
	DeliveryMinDays      int    `yaml:"delivery_min_days"`
	DeliveryMaxDays      int    `yaml:"delivery_max_days"`
}

// defaultTables mirrors the deployment's standard pricing sheet so local
// development works without a mounted config file.
const defaultTables = `
currency: JPY
domestic_zone: domestic
free_shipping_threshold: 5000
tax_rate: "0.10"
zones:
  - code: domestic
    multiplier: "1"
    countries: [JP]
    methods: [standard, express]
  - code: asia
    multiplier: "1.6"
    countries: [KR, TW, SG, HK]
    methods: [standard, express]
  - code: overseas
    multiplier: "2.5"
    countries: [US, CA, DE, FR, GB, AU]
    methods: [standard]
methods:
  - id: standard
    label: Standard
    base_price: 490
    max_weight_grams: 20000
    free_shipping_eligible: true
    delivery_min_days: 3
    delivery_max_days: 7
  - id: express
    label: Express
    base_price: 890
    max_weight_grams: 10000
    delivery_min_days: 1
    delivery_max_days: 2
`

// DefaultTables returns the built-in pricing configuration.
func DefaultTables() (Config, error) {
	return ParseTables([]byte(defaultTables))
}

// LoadTables reads the pricing tables from a YAML file and converts them into
// an engine Config.
func LoadTables(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("pricing tables: read %s: %w", path, err)
	}
	return ParseTables(raw)
}

// ParseTables converts raw YAML into an engine Config.
func ParseTables(raw []byte) (Config, error) {
	var file tablesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Config{}, fmt.Errorf("pricing tables: parse yaml: %w", err)
	}

	taxRate := decimal.Zero
	if trimmed := strings.TrimSpace(file.TaxRate); trimmed != "" {
		parsed, err := decimal.NewFromString(trimmed)
		if err != nil {
			return Config{}, fmt.Errorf("pricing tables: tax rate %q: %w", trimmed, err)
		}
		taxRate = parsed
	}

	cfg := Config{
		Currency:              file.Currency,
		DomesticZone:          file.DomesticZone,
		FreeShippingThreshold: file.FreeShippingThreshold,
		TaxRate:               taxRate,
		Countries:             map[string]string{},
	}

	for _, entry := range file.Zones {
		multiplier := decimal.NewFromInt(1)
		if trimmed := strings.TrimSpace(entry.Multiplier); trimmed != "" {
			parsed, err := decimal.NewFromString(trimmed)
			if err != nil {
				return Config{}, fmt.Errorf("pricing tables: zone %s multiplier %q: %w", entry.Code, trimmed, err)
			}
			multiplier = parsed
		}
		cfg.Zones = append(cfg.Zones, domain.ShippingZone{
			Code:       entry.Code,
			Multiplier: multiplier,
			MethodIDs:  entry.Methods,
		})
		for _, country := range entry.Countries {
			normalized := domain.NormalizeCountryCode(country)
			if normalized == "" {
				continue
			}
			cfg.Countries[normalized] = strings.TrimSpace(entry.Code)
		}
	}

	for _, entry := range file.Methods {
		cfg.Methods = append(cfg.Methods, domain.ShippingMethod{
			ID:                   entry.ID,
			Label:                entry.Label,
			BasePrice:            entry.BasePrice,
			MaxWeightGrams:       entry.MaxWeightGrams,
			FreeShippingEligible: entry.FreeShippingEligible,
			DeliveryMinDays:      entry.DeliveryMinDays,
			DeliveryMaxDays:      entry.DeliveryMaxDays,
		})
	}

	return cfg, nil
}
