// Package events defines the dose lifecycle events emitted on the event
// bus and their wire representation on the device topics.
//
// Available event types:
//   - DueEvent: a dose has reached its due point
//   - DispensedEvent: a dose was dispensed, automatically or on command
//   - MissedEvent: a past dose was never dispensed or never confirmed
//   - ReminderEvent: an upcoming dose reminder fired
//   - TakenEvent: the patient confirmed intake
package events
