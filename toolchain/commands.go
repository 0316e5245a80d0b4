package toolchain

import "strconv"

// Argument builders for the external tools.

// BasecallArgs builds a plain basecalling invocation writing BAM to stdout.
func BasecallArgs(model, input, device string) []string {
	return []string{"basecaller", model, input, "--device", device, "--no-trim"}
}

// FusedBasecallArgs builds a basecalling invocation that demultiplexes
// inline, writing per-barcode BAMs under outDir.
func FusedBasecallArgs(model, input, device string, p Profile, arrangement, sequences, outDir string) []string {
	args := BasecallArgs(model, input, device)
	return append(args,
		FlagBarcodeArrangement, arrangement,
		p.SequenceFlag, sequences,
		FlagOutputDir, outDir,
	)
}

// DemuxArgs builds a standalone demultiplexing invocation over bam.
func DemuxArgs(p Profile, arrangement, sequences, outDir, bam string) []string {
	return []string{
		"demux",
		FlagOutputDir, outDir,
		FlagBarcodeArrangement, arrangement,
		p.SequenceFlag, sequences,
		"--no-trim",
		bam,
	}
}

// SummaryArgs builds a per-read tabular summary invocation over bam.
func SummaryArgs(bam string) []string {
	return []string{"summary", bam}
}

// SamtoolsFastqArgs builds a BAM to FASTQ conversion writing to stdout.
func SamtoolsFastqArgs(threads int, bam string) []string {
	return []string{"fastq", "-@", strconv.Itoa(threads), bam}
}

// CutadaptArgs builds a primer trimming invocation.
func CutadaptArgs(forward, reverse string, minLength, threads int, out, in string) []string {
	return []string{
		"-g", forward,
		"-a", reverse,
		"--discard-untrimmed",
		"-m", strconv.Itoa(minLength),
		"-j", strconv.Itoa(threads),
		"-o", out,
		in,
	}
}
