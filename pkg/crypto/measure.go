// Package crypto extends TPM platform measurements over the artifacts
// that decide what gets booted. Measurement is strictly best-effort: a
// machine without a TPM boots exactly like one with it.
package crypto

import (
	"github.com/systemboot/tpmtool/pkg/tpm"
	logger "github.com/z46-dev/go-logger"
)

var log = logger.NewLogger().SetPrefix("[TPM]", logger.BoldYellow)

const (
	// BlobPCR holds kernel and initramfs images.
	BlobPCR uint32 = 7
	// BootConfigPCR holds parsed boot configuration bytes.
	BootConfigPCR uint32 = 8
)

// TryMeasureData extends pcr with data. Info names the blob in the log.
// TPM absence or failure is reported and swallowed.
func TryMeasureData(pcr uint32, data []byte, info string) {
	t, err := tpm.NewTPM()
	if err != nil {
		log.Warningf("cannot open TPM: %v\n", err)
		return
	}
	defer t.Close()
	log.Statusf("measuring %s into PCR %d\n", info, pcr)
	t.Measure(pcr, data)
}

// MeasureConfig extends the boot-config PCR with raw configuration file
// bytes, named by the partition path they came from.
func MeasureConfig(data []byte, path string) {
	TryMeasureData(BootConfigPCR, data, path)
}

// MeasureImage extends the blob PCR with a kernel or initramfs image.
func MeasureImage(data []byte, path string) {
	TryMeasureData(BlobPCR, data, path)
}
