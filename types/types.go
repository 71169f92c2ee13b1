package types

type EventName string

const (
	FileUploaded   EventName = "file_uploaded"
	FileDeleted    EventName = "file_deleted"
	FileRenamed    EventName = "file_renamed"
	FileCompressed EventName = "file_compressed"
	FileEncrypted  EventName = "file_encrypted"
	UploadFailed   EventName = "upload_failed"
)

type Codec string

const (
	Gzip Codec = "gzip"
	Zstd Codec = "zstd"
	LZ4  Codec = "lz4"
)

func ParseCodec(s string) (Codec, bool) {
	switch Codec(s) {
	case Gzip, Zstd, LZ4:
		return Codec(s), true
	case "":
		return Gzip, true
	default:
		return "", false
	}
}

func (c Codec) Extension() string {
	switch c {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	case LZ4:
		return ".lz4"
	default:
		return ""
	}
}

const EncryptedExtension = ".enc"
