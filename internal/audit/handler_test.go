package audit_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/frahmantamala/hospital-auth/internal/audit"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubReader struct {
	got     audit.Filter
	entries []audit.Entry
	total   int
	err     error
}

func (s *stubReader) List(_ context.Context, f audit.Filter) ([]audit.Entry, int, error) {
	s.got = f
	return s.entries, s.total, s.err
}

var _ = Describe("Handler", func() {
	var (
		reader  *stubReader
		handler *audit.Handler
	)

	BeforeEach(func() {
		reader = &stubReader{}
		handler = audit.NewHandler(reader)
	})

	list := func(query string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.List(rec, httptest.NewRequest(http.MethodGet, "/audit-logs"+query, nil))
		return rec
	}

	It("uses the first page of fifty by default", func() {
		rec := list("")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(reader.got.Limit).To(Equal(50))
		Expect(reader.got.Offset).To(BeZero())
		Expect(reader.got.UserID).To(BeNil())
		Expect(rec.Body.String()).To(ContainSubstring(`"entries":[]`))
	})

	It("translates page and filters into the reader filter", func() {
		uid := int64(4)
		reader.entries = []audit.Entry{{ID: 9, UserID: &uid, Action: audit.ActionLoginFail}}
		reader.total = 41

		rec := list("?page=3&per_page=20&action=LOGIN_FAIL&user_id=4")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(reader.got.Limit).To(Equal(20))
		Expect(reader.got.Offset).To(Equal(40))
		Expect(reader.got.Action).To(Equal(audit.ActionLoginFail))
		Expect(*reader.got.UserID).To(Equal(int64(4)))

		var resp audit.ListResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Total).To(Equal(41))
		Expect(resp.Page).To(Equal(3))
		Expect(resp.Entries).To(HaveLen(1))
	})

	It("caps the page size at one hundred", func() {
		list("?per_page=5000")
		Expect(reader.got.Limit).To(Equal(100))
	})

	DescribeTable("rejects bad paging parameters",
		func(query string) {
			Expect(list(query).Code).To(Equal(http.StatusBadRequest))
		},
		Entry("zero page", "?page=0"),
		Entry("text page", "?page=two"),
		Entry("negative size", "?per_page=-1"),
		Entry("text user", "?user_id=me"),
	)

	It("reports an unavailable store", func() {
		reader.err = errors.New("connection reset")
		Expect(list("").Code).To(Equal(http.StatusServiceUnavailable))
	})
})
