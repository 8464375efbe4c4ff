package output

import "github.com/AlecAivazis/survey/v2"

// SurveyChooser prompts on the terminal.
type SurveyChooser struct{}

// Confirm asks a yes/no question.
func (SurveyChooser) Confirm(message string) (bool, error) {
	result := false
	c := &survey.Confirm{
		Message: message,
	}
	err := survey.AskOne(c, &result)
	return result, err
}

// Choose asks the user to select one option.
func (SurveyChooser) Choose(message string, options []string) (string, error) {
	var result string
	s := &survey.Select{
		Message: message,
		Options: options,
	}
	err := survey.AskOne(s, &result)
	return result, err
}
