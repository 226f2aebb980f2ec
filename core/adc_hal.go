package core

import (
	"errors"
	"sync"
)

// ADCChannelID identifies a logical ADC channel.
type ADCChannelID uint8

// ADCValue is the "raw" ADC reading as seen by the rest of the firmware.
// Convention here: 12-bit value, matching the supply-voltage thresholds.
type ADCValue uint16

// ADCDriver is the abstract ADC interface that core code uses.
type ADCDriver interface {
	// ConfigureChannel prepares a channel for analog input.
	// For pin-muxed channels, this should set pin to analog mode.
	ConfigureChannel(ch ADCChannelID) error

	// ReadRaw performs a one-shot sample from the given channel.
	ReadRaw(ch ADCChannelID) (ADCValue, error)
}

// SimADC is an ADCDriver whose readings are set by the host
type SimADC struct {
	mu     sync.Mutex
	values map[ADCChannelID]ADCValue
}

// NewSimADC creates a simulated ADC with every channel reading zero
func NewSimADC() *SimADC {
	return &SimADC{values: make(map[ADCChannelID]ADCValue)}
}

// ConfigureChannel registers the channel
func (a *SimADC) ConfigureChannel(ch ADCChannelID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.values[ch]; !ok {
		a.values[ch] = 0
	}
	return nil
}

// ReadRaw returns the value last set for ch
func (a *SimADC) ReadRaw(ch ADCChannelID) (ADCValue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.values[ch]
	if !ok {
		return 0, errors.New("adc channel " + itoa(int(ch)) + " not configured")
	}
	return v, nil
}

// Set changes the reading of ch
func (a *SimADC) Set(ch ADCChannelID, v ADCValue) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[ch] = v
}
