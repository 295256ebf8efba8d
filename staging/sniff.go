package staging

import (
	"github.com/gabriel-vasile/mimetype"

	"github.com/akila/media-converter/models"
)

// contentTypes lists the sniffed MIME types accepted for each upload
// extension. Matching walks the detected type's parents, so a .docx that
// sniffs as a plain zip container still passes.
var contentTypes = map[string][]string{
	".pdf":  {"application/pdf"},
	".png":  {"image/png"},
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".webp": {"image/webp"},
	".tif":  {"image/tiff"},
	".tiff": {"image/tiff"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
	".mp4":  {"video/mp4"},
	".m4v":  {"video/x-m4v", "video/mp4"},
	".mov":  {"video/quicktime", "video/mp4"},
	".mkv":  {"video/x-matroska", "video/webm"},
	".webm": {"video/webm", "video/x-matroska"},
	".avi":  {"video/x-msvideo"},
	".flv":  {"video/x-flv"},
}

// CheckUpload verifies that a saved upload's extension is one of allowed and
// that its content sniffs as that kind of file.
func CheckUpload(f models.StagedFile, allowed ...string) error {
	permitted := false
	for _, a := range allowed {
		if f.Ext == a {
			permitted = true
			break
		}
	}
	if !permitted {
		return models.ClientInput("Unsupported file type %q", f.Ext)
	}

	mtype, err := mimetype.DetectFile(f.Path)
	if err != nil {
		return models.ClientInput("Could not read uploaded file")
	}
	want := contentTypes[f.Ext]
	for m := mtype; m != nil; m = m.Parent() {
		for _, w := range want {
			if m.Is(w) {
				return nil
			}
		}
	}
	return models.ClientInput("File content (%s) does not match extension %s", mtype.String(), f.Ext)
}
