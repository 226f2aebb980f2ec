package protocol

import "testing"

func TestCRC16Empty(t *testing.T) {
	if crc := CRC16(nil); crc != 0xFFFF {
		t.Errorf("Expected initial value 0xFFFF for empty input, got %04X", crc)
	}
}

func TestCRC16DetectsSingleBitFlip(t *testing.T) {
	data := []byte{0x0A, 0x01, 0x9C, 0x46, 0x20}
	base := CRC16(data)

	for i := range data {
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), data...)
			flipped[i] ^= 1 << bit
			if CRC16(flipped) == base {
				t.Errorf("Flip of byte %d bit %d not detected", i, bit)
			}
		}
	}
}
