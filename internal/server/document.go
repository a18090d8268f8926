package server

import (
	"encoding/base64"
	"math"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
	"github.com/joseph-ayodele/survey-extractor/internal/ingest"
)

// Request fields of Extract and Submit:
//
//	document_id     optional, generated when empty
//	filename        optional, used for the format when format is empty
//	format          "pdf", "png" or "jpeg"
//	content         base64 document bytes
//	page_images     base64 pre-rendered page images, instead of content
//	selected_pages  zero-based page indices; empty means every page
func documentFromRequest(req *structpb.Struct, maxBytes int) (entity.SourceDocument, error) {
	f := req.GetFields()
	doc := entity.SourceDocument{
		ID:       strings.TrimSpace(f["document_id"].GetStringValue()),
		Filename: strings.TrimSpace(f["filename"].GetStringValue()),
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	format := f["format"].GetStringValue()
	if format == "" && doc.Filename != "" {
		if i := strings.LastIndex(doc.Filename, "."); i >= 0 {
			format = doc.Filename[i+1:]
		}
	}
	if format != "" {
		ff, ok := constants.FormatForExt(format)
		if !ok {
			return doc, common.InvalidArgumentErrorf("unsupported format %q", format)
		}
		doc.Format = ff
	}

	size := 0
	if s := f["content"].GetStringValue(); s != "" {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return doc, common.InvalidArgumentErrorf("content is not base64: %v", err)
		}
		doc.Content = b
		size += len(b)
	}
	for i, v := range f["page_images"].GetListValue().GetValues() {
		b, err := base64.StdEncoding.DecodeString(v.GetStringValue())
		if err != nil || len(b) == 0 {
			return doc, common.InvalidArgumentErrorf("page_images[%d] is not a base64 image", i)
		}
		doc.Pages = append(doc.Pages, entity.Page{Index: i, Data: b})
		size += len(b)
	}
	if size == 0 {
		return doc, common.InvalidArgumentError("content or page_images is required")
	}
	if maxBytes > 0 && size > maxBytes {
		return doc, common.InvalidArgumentErrorf("document is %d bytes, limit is %d", size, maxBytes)
	}

	selected, err := selectedPages(f["selected_pages"].GetListValue())
	if err != nil {
		return doc, err
	}
	if len(selected) > 0 {
		if err := ingest.SelectPages(&doc, selected); err != nil {
			return doc, common.InvalidArgumentError(err.Error())
		}
	}
	return doc, nil
}

func selectedPages(list *structpb.ListValue) ([]int, error) {
	var out []int
	for _, v := range list.GetValues() {
		n := v.GetNumberValue()
		if n < 0 || n != math.Trunc(n) {
			return nil, common.InvalidArgumentErrorf("selected_pages: %v is not a page index", n)
		}
		out = append(out, int(n))
	}
	return out, nil
}

func runIDFromRequest(req *structpb.Struct) (string, error) {
	id := strings.TrimSpace(req.GetFields()["run_id"].GetStringValue())
	if id == "" {
		return "", common.InvalidArgumentError("run_id is required")
	}
	return id, nil
}
