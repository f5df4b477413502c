package coreg

// Point represents a 2D coordinate. Library code always works in meters;
// unit conversion happens at the parse and display boundaries.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AffineMatrix for 2D transforms: x' = ax + by + tx, y' = cx + dy + ty
type AffineMatrix struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	Tx float64 `json:"tx"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	Ty float64 `json:"ty"`
}

// Identity returns an identity matrix (no transformation)
func Identity() AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: 0, C: 0, D: 1, Ty: 0}
}

// MeasurementRow is one row extracted from an instrument export: a position
// (a raw string key and/or absolute stage coordinates) plus the measured
// values for that point. Coordinates are in the unit declared by the source
// batch until NormalizeRow converts them to meters.
type MeasurementRow struct {
	// PositionKey is the position string as it appeared in the source file,
	// e.g. "12.5,-7.5" or "(12.5, -7.5)". May be empty when the source
	// carries numeric columns instead.
	PositionKey string `json:"positionKey,omitempty"`

	// X and Y are the absolute stage coordinates. Nil when the source only
	// provides a position string.
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`

	// XRelative and YRelative are the sample-frame coordinates, filled in by
	// the alignment step when a sample alignment is available.
	XRelative *float64 `json:"xRelative,omitempty"`
	YRelative *float64 `json:"yRelative,omitempty"`

	// Values holds the measured quantities for this point, keyed by field
	// name. Attributes holds non-numeric payload fields.
	Values     map[string]float64 `json:"values,omitempty"`
	Attributes map[string]string  `json:"attributes,omitempty"`
}

// PositionedResult is a persisted measurement record at one sample position.
// Instances are reused across re-imports when their position key matches a
// freshly parsed row, so any identity attached to them survives.
type PositionedResult struct {
	// Name is the derived display label, recomputed on every merge from the
	// relative (preferred) or absolute position in millimeters.
	Name string `json:"name"`

	// PositionKey is the remembered raw position string, used for matching
	// when the measurement type reconciles by string key.
	PositionKey string `json:"positionKey,omitempty"`

	// RecordID is the stable lab identifier assigned when the record is
	// first created. Re-imports update the record but never reassign it.
	RecordID string `json:"recordId,omitempty"`

	XRelative *float64 `json:"xRelative,omitempty"`
	YRelative *float64 `json:"yRelative,omitempty"`
	XAbsolute *float64 `json:"xAbsolute,omitempty"`
	YAbsolute *float64 `json:"yAbsolute,omitempty"`

	Values     map[string]float64 `json:"values,omitempty"`
	Attributes map[string]string  `json:"attributes,omitempty"`
}

// RowBatch is one batch of measurement rows for a single entry, as exported
// by an instrument-side reader or delivered over MQTT.
type RowBatch struct {
	Entry string           `json:"entry"`
	Unit  string           `json:"unit,omitempty"` // length unit of row coordinates, default "m"
	Rows  []MeasurementRow `json:"rows"`
}

// EntryConfig defines one measurement entry from the config file
type EntryConfig struct {
	ID      string `yaml:"id" json:"id"`
	Topic   string `yaml:"topic,omitempty" json:"topic,omitempty"`
	KeyMode string `yaml:"keyMode,omitempty" json:"keyMode,omitempty"` // "coordinates" (default) or "string"
	Display string `yaml:"display,omitempty" json:"display,omitempty"` // "paren" (default) or "sample"
	Unit    string `yaml:"unit,omitempty" json:"unit,omitempty"`       // default length unit for rows

	Alignment *AlignmentConfig `yaml:"alignment,omitempty" json:"alignment,omitempty"`
}

// AlignmentConfig describes a rectangular sample alignment in the config
// file. Coordinates and dimensions are in Unit (default "m").
type AlignmentConfig struct {
	Width       float64 `yaml:"width" json:"width"`
	Height      float64 `yaml:"height" json:"height"`
	XUpperLeft  float64 `yaml:"xUpperLeft" json:"xUpperLeft"`
	YUpperLeft  float64 `yaml:"yUpperLeft" json:"yUpperLeft"`
	XLowerRight float64 `yaml:"xLowerRight" json:"xLowerRight"`
	YLowerRight float64 `yaml:"yLowerRight" json:"yLowerRight"`
	Unit        string  `yaml:"unit,omitempty" json:"unit,omitempty"`
}

// Config represents the full configuration file
type Config struct {
	MQTT         MQTTConfig    `yaml:"mqtt" json:"mqtt"`
	Entries      []EntryConfig `yaml:"entries" json:"entries"`
	ResultsCache string        `yaml:"resultsCache,omitempty" json:"resultsCache,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty" json:"broker,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"`
	ClientID      string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// GetEntryByID returns the entry config for the given ID
func (c *Config) GetEntryByID(id string) *EntryConfig {
	for i := range c.Entries {
		if c.Entries[i].ID == id {
			return &c.Entries[i]
		}
	}
	return nil
}

// GetEntryByTopic returns the entry config subscribed to the given topic
func (c *Config) GetEntryByTopic(topic string) *EntryConfig {
	for i := range c.Entries {
		if c.Entries[i].Topic == topic {
			return &c.Entries[i]
		}
	}
	return nil
}
