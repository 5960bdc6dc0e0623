package notification

import (
	"fmt"

	"tokenwatch/internal/model"
)

// Text renders an alert as a plain message body. Analysis and change
// alerts carry their full text in Message.
func Text(alert Alert) string {
	if alert.Title == "" {
		return alert.Message
	}
	emoji := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		emoji = "⚠️"
	case AlertCritical:
		emoji = "🚨"
	}
	return fmt.Sprintf("%s %s\n\n%s", emoji, alert.Title, alert.Message)
}

// AnalysisMessage formats the periodic contract analysis alert.
func AnalysisMessage(contract string, sr model.SupportResistance) string {
	return fmt.Sprintf("Contract Analysis for %s:\n"+
		"Entry Point: $%.2f\n"+
		"Exit Point: $%.2f\n"+
		"Max Balance: $%.2f\n"+
		"Min Balance: $%.2f\n",
		contract, sr.EntryPoint, sr.ExitPoint, sr.Resistance, sr.Support)
}

// AnalysisAlert wraps AnalysisMessage in an info alert.
func AnalysisAlert(contract string, sr model.SupportResistance) Alert {
	return Alert{Level: AlertInfo, Message: AnalysisMessage(contract, sr)}
}

// ChangeAlert reports a state change seen by the real-time watcher.
func ChangeAlert(contract string) Alert {
	return Alert{Level: AlertWarning, Message: fmt.Sprintf("Change detected in contract %s", contract)}
}
