package genai

import (
	"context"
	"encoding/base64"
)

// Unknown is the sentinel value for any prescription field the model could
// not determine. It is a valid, displayable value, not an error.
const Unknown = "unknown"

const analyzePrompt = `You are an AI assistant that analyzes prescription images and extracts key information.

Analyze the attached prescription image and extract the medication name, dosage, frequency, and any additional notes. Return a JSON object with the medicationName, dosage, frequency, and additionalNotes fields populated. If some information is not visible or cannot be determined, populate the field with "unknown".`

// Analysis is the structured output of one prescription image analysis.
// Every field is populated; fields the model could not read hold Unknown.
type Analysis struct {
	MedicationName  string `json:"medicationName"`
	Dosage          string `json:"dosage"`
	Frequency       string `json:"frequency"`
	AdditionalNotes string `json:"additionalNotes"`
}

// AnalyzePrescription sends the image to the model with the extraction
// instruction and returns the four-field analysis.
func (c *Client) AnalyzePrescription(ctx context.Context, img Image) (*Analysis, error) {
	parts := []part{
		{Text: analyzePrompt},
		{InlineData: &inlineData{
			MIMEType: img.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(img.Data),
		}},
	}

	var a Analysis
	if err := c.generateJSON(ctx, parts, &a); err != nil {
		return nil, err
	}

	a.normalize()
	return &a, nil
}

func (a *Analysis) normalize() {
	if a.MedicationName == "" {
		a.MedicationName = Unknown
	}
	if a.Dosage == "" {
		a.Dosage = Unknown
	}
	if a.Frequency == "" {
		a.Frequency = Unknown
	}
	if a.AdditionalNotes == "" {
		a.AdditionalNotes = Unknown
	}
}
