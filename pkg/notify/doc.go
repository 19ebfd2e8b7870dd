// Package notify delivers engine events to Telegram. It sits behind the
// event broker, so delivery failures and slow sends can never block or
// fail the reconciliation pipeline.
package notify
