package genai

import (
	"context"
	"fmt"
	"time"
)

const tasksPromptFormat = `You are a helpful medical assistant. Based on the following prescription information, generate a list of tasks for the patient. Create tasks for taking medication for the next %d days based on the frequency.

Medication: %s
Dosage: %s
Frequency: %s
Notes: %s

The current date is %s.
Return a JSON object with a "tasks" array. Each task has a "type" (e.g. "Medication"), a "text_en" description in English, a "text_kn" description in Kannada, a "dueDate" in ISO 8601 format, and a "status" of "Pending".`

// GeneratedTask is one reminder item produced by the model. No validation
// is applied to the due date or the task count; the list is used as-is.
type GeneratedTask struct {
	Type    string `json:"type"`
	TextEN  string `json:"text_en"`
	TextKN  string `json:"text_kn"`
	DueDate string `json:"dueDate"`
	Status  string `json:"status"`
}

// GenerateTasks asks the model for a reminder schedule derived from the
// analysis. Due dates are anchored to now, not to any date printed on the
// prescription.
func (c *Client) GenerateTasks(ctx context.Context, a Analysis, now time.Time, windowDays int) ([]GeneratedTask, error) {
	if windowDays <= 0 {
		windowDays = 7
	}

	prompt := fmt.Sprintf(tasksPromptFormat,
		windowDays,
		a.MedicationName,
		a.Dosage,
		a.Frequency,
		a.AdditionalNotes,
		now.UTC().Format(time.RFC3339),
	)

	var out struct {
		Tasks []GeneratedTask `json:"tasks"`
	}
	if err := c.generateJSON(ctx, []part{{Text: prompt}}, &out); err != nil {
		return nil, err
	}

	for i := range out.Tasks {
		if out.Tasks[i].Status == "" {
			out.Tasks[i].Status = "Pending"
		}
	}

	return out.Tasks, nil
}
