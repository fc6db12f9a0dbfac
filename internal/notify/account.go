package notify

import "fmt"

func VerificationSubject() string {
	return "Verify your CampX email"
}

// VerificationText is the body of the email-verification mail.
func VerificationText(name, link string) string {
	return fmt.Sprintf(
		"Hi %s,\n\nConfirm your campus email address by opening the link below:\n%s\n\nThe link expires in 24 hours. If you did not sign up for CampX you can ignore this email.",
		name, link,
	)
}

func PasswordResetSubject() string {
	return "Reset your CampX password"
}

func PasswordResetText(name, link string) string {
	return fmt.Sprintf(
		"Hi %s,\n\nA password reset was requested for your CampX account. Choose a new password here:\n%s\n\nThe link expires in 1 hour and works once. If you did not ask for this, ignore this email.",
		name, link,
	)
}
