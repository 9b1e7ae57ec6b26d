// Package mailer delivers plain-text email over SMTP.
//
// Port 465 uses implicit TLS (SMTPS, the Gmail default); any other port
// upgrades with STARTTLS when the server advertises it. Credentials are sent
// with AUTH PLAIN.
package mailer
