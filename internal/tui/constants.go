package tui

import "time"

const (
	// Timeouts and Intervals
	TickInterval   = 500 * time.Millisecond
	NotifyDuration = 4 * time.Second
	ActionTimeout  = 30 * time.Second

	// Input Dimensions
	InputWidth = 30

	// Layout Offsets and Padding
	ProgressBarWidthOffset = 12
	PopupWidth             = 60
	PopupHeight            = 9

	// Graph
	SpeedHistoryLen = 60

	// Units
	Megabyte = 1024.0 * 1024.0
)
