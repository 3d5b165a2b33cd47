package billsplit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/billsplit/internal/scanning"
	"github.com/zombor/billsplit/internal/split"
)

func multipartUpload(fields map[string]string, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		Expect(writer.WriteField(k, v)).To(Succeed())
	}
	if filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
		h.Set("Content-Type", contentType)
		part, err := writer.CreatePart(h)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

func decodeBody(resp *http.Response, v any) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	Expect(json.Unmarshal(body, v)).To(Succeed(), string(body))
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		splitter    *mockSplitter
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		service = NewServiceWithDeps(db, splitter, storage, split.DefaultTolerance,
			&mockIDGenerator{id: "split-1"},
			&mockTimeSource{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)})
		server = NewServerWithMux(service, auth, "USD", http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		splitter = newMockSplitter()
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	postJSON := func(path, body string) *http.Response {
		resp, err := http.Post(ghttpServer.URL()+path, "application/json", strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	Describe("POST /api/splits", func() {
		var (
			fields map[string]string
			resp   *http.Response
		)

		BeforeEach(func() {
			fields = map[string]string{"instructions": "Alex had the salad, Sam had the steaks"}
		})

		JustBeforeEach(func() {
			body, contentType := multipartUpload(fields, "receipt.jpg", "image/jpeg", []byte("jpeg bytes"))
			var err error
			resp, err = http.Post(ghttpServer.URL()+"/api/splits", contentType, body)
			Expect(err).NotTo(HaveOccurred())
		})

		When("the split succeeds", func() {
			It("returns the record with a summary", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var got splitResponse
				decodeBody(resp, &got)
				Expect(got.ID).To(Equal("split-1"))
				Expect(got.Status).To(Equal(StatusOK))
				Expect(got.Split.Owed()).To(Equal([]float64{32.4, 75.6}))
				Expect(got.Summary).To(Equal([]string{"Alex owes $32.40", "Sam owes $75.60"}))
			})

			It("passes the upload to the model", func() {
				resp.Body.Close()
				Expect(splitter.requests).To(HaveLen(1))
				Expect(splitter.requests[0].ContentType).To(Equal("image/jpeg"))
				Expect(splitter.requests[0].Image).To(Equal([]byte("jpeg bytes")))
			})
		})

		When("a tip percentage is given", func() {
			BeforeEach(func() {
				fields["tip_percentage"] = "15"
			})

			It("forwards it", func() {
				resp.Body.Close()
				Expect(splitter.requests[0].TipPercentage).To(Equal(15.0))
			})
		})

		When("the tip percentage is not a number", func() {
			BeforeEach(func() {
				fields["tip_percentage"] = "lots"
			})

			It("returns bad request", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("the instructions are missing", func() {
			BeforeEach(func() {
				delete(fields, "instructions")
			})

			It("returns bad request", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
				Expect(splitter.requests).To(BeEmpty())
			})
		})

		When("the model returns an empty allocation", func() {
			BeforeEach(func() {
				splitter.payloads = []string{`{"total": 10, "individuals": []}`}
			})

			It("returns a retryable error with the record id", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

				var got errorResponse
				decodeBody(resp, &got)
				Expect(got.Error).To(Equal("could not calculate split"))
				Expect(got.ID).To(Equal("split-1"))
				Expect(got.Retryable).To(BeTrue())
				Expect(got.Detail).To(ContainSubstring("empty"))
			})
		})

		When("the model is rate limited", func() {
			BeforeEach(func() {
				splitter.err = fmt.Errorf("gemini: %w", scanning.ErrRateLimited)
			})

			It("returns too many requests", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))
				resp.Body.Close()
			})
		})

		When("the model is unavailable", func() {
			BeforeEach(func() {
				splitter.err = errors.New("connection refused")
			})

			It("returns bad gateway", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				resp.Body.Close()
			})
		})
	})

	Describe("POST /api/splits without a file", func() {
		It("returns bad request", func() {
			body, contentType := multipartUpload(map[string]string{"instructions": "split it"}, "", "", nil)
			resp, err := http.Post(ghttpServer.URL()+"/api/splits", contentType, body)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("POST /api/splits/{id}/regenerate", func() {
		BeforeEach(func() {
			db.splits["split-1"] = &Record{
				ID:           "split-1",
				Instructions: "Alex and Sam",
				Filename:     "split-1_receipt.jpg",
				ContentType:  "image/jpeg",
				Status:       StatusFailed,
				Attempts:     1,
			}
			storage.files["split-1_receipt.jpg"] = []byte("jpeg bytes")
		})

		It("returns the new result", func() {
			resp := postJSON("/api/splits/split-1/regenerate", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var got splitResponse
			decodeBody(resp, &got)
			Expect(got.Status).To(Equal(StatusOK))
			Expect(got.Attempts).To(Equal(2))
		})

		It("returns not found for unknown ids", func() {
			resp := postJSON("/api/splits/other/regenerate", "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})
	})

	Describe("GET /api/splits", func() {
		It("lists records newest first", func() {
			db.splits["old"] = &Record{ID: "old", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
			db.splits["new"] = &Record{ID: "new", CreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}

			resp, err := http.Get(ghttpServer.URL() + "/api/splits")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var got []*Record
			decodeBody(resp, &got)
			Expect(got).To(HaveLen(2))
			Expect(got[0].ID).To(Equal("new"))
		})

		It("returns an empty array when there are none", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/splits")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.TrimSpace(string(body))).To(Equal("[]"))
		})
	})

	Describe("GET /api/splits/{id}", func() {
		It("returns the record", func() {
			db.splits["split-1"] = &Record{ID: "split-1", Status: StatusOK, Split: &split.BillSplit{
				Total:       10,
				Individuals: []split.Individual{{Name: "Jo", Owed: 10}},
			}}

			resp, err := http.Get(ghttpServer.URL() + "/api/splits/split-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var got splitResponse
			decodeBody(resp, &got)
			Expect(got.Summary).To(Equal([]string{"Jo owes $10.00"}))
		})

		It("returns not found for unknown ids", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/splits/nope")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})
	})

	Describe("GET /api/splits/{id}/file", func() {
		It("serves the stored image", func() {
			db.splits["split-1"] = &Record{ID: "split-1", Filename: "split-1_r.png", ContentType: "image/png"}
			storage.files["split-1_r.png"] = []byte("png bytes")

			resp, err := http.Get(ghttpServer.URL() + "/api/splits/split-1/file")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(Equal([]byte("png bytes")))
		})
	})

	Describe("DELETE /api/splits/{id}", func() {
		It("removes the record", func() {
			db.splits["split-1"] = &Record{ID: "split-1", Filename: "split-1_r.png"}

			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/splits/split-1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			resp.Body.Close()
			Expect(db.splits).To(BeEmpty())
		})
	})

	Describe("POST /api/splits/even", func() {
		It("splits the total", func() {
			resp := postJSON("/api/splits/even", `{"total": 100, "number_of_people": 3, "names": ["Alex", "Sam", "Jo"]}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var got computedSplitResponse
			decodeBody(resp, &got)
			Expect(got.Split.Owed()).To(Equal([]float64{33.34, 33.33, 33.33}))
			Expect(got.Validation.IsValid).To(BeTrue())
			Expect(got.Summary[0]).To(Equal("Alex owes $33.34"))
		})

		It("rejects a split with nobody in it", func() {
			resp := postJSON("/api/splits/even", `{"total": 100}`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})

		It("rejects invalid JSON", func() {
			resp := postJSON("/api/splits/even", `{`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("POST /api/splits/validate", func() {
		It("reports the difference", func() {
			resp := postJSON("/api/splits/validate", `{"individuals": [{"name": "A", "owed": 50}, {"name": "B", "owed": 50.03}], "expected_total": 100}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var got split.Validation
			decodeBody(resp, &got)
			Expect(got).To(Equal(split.Validation{IsValid: false, Difference: 0.03}))
		})

		It("honours an explicit zero tolerance", func() {
			resp := postJSON("/api/splits/validate", `{"individuals": [{"name": "A", "owed": 50}, {"name": "B", "owed": 50.01}], "expected_total": 100, "tolerance": 0}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var got split.Validation
			decodeBody(resp, &got)
			Expect(got).To(Equal(split.Validation{IsValid: false, Difference: 0.01}))
		})

		It("uses the service tolerance when none is sent", func() {
			resp := postJSON("/api/splits/validate", `{"individuals": [{"name": "A", "owed": 50}, {"name": "B", "owed": 50.01}], "expected_total": 100}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var got split.Validation
			decodeBody(resp, &got)
			Expect(got.IsValid).To(BeTrue())
		})
	})

	Describe("POST /api/price-check", func() {
		It("returns the report", func() {
			resp := postJSON("/api/price-check", `{"comparisons": [{"item_name": "Eggs", "receipt_price": 7.5, "average_price": 5}]}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var got map[string]any
			decodeBody(resp, &got)
			Expect(got).To(HaveKeyWithValue("rip_off_score", BeNumerically("==", 6)))
			Expect(got).To(HaveKeyWithValue("total_overpayment", BeNumerically("==", 2.5)))
		})

		It("requires comparisons", func() {
			resp := postJSON("/api/price-check", `{"comparisons": []}`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("GET /healthz", func() {
		It("is always available", func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
			setupServer()

			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})
	})

	Describe("GET /metrics", func() {
		It("exposes split counters", func() {
			resp := postJSON("/api/splits/even", `{"total": 10, "number_of_people": 2}`)
			resp.Body.Close()

			ghttpServer.AppendHandlers(server.ServeHTTP)
			resp, err := http.Get(ghttpServer.URL() + "/metrics")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`billsplit_splits_total{outcome="even"}`))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
			setupServer()
		})

		It("rejects requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/splits")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			resp.Body.Close()
		})

		It("rejects wrong credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/splits", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "wrong")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			resp.Body.Close()
		})

		It("accepts the right credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/splits", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "secret")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})
	})

	Describe("CORS", func() {
		It("answers preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/splits", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			resp.Body.Close()
		})
	})
})

var _ = Describe("contentTypeOf", func() {
	DescribeTable("resolves the upload type",
		func(declared, filename, expected string) {
			Expect(contentTypeOf(declared, filename)).To(Equal(expected))
		},
		Entry("declared type wins", "image/PNG", "x.jpg", "image/png"),
		Entry("octet stream falls back to extension", "application/octet-stream", "x.HEIC", "image/heic"),
		Entry("empty falls back to extension", "", "scan.pdf", "application/pdf"),
		Entry("unknown", "", "notes.txt", "application/octet-stream"),
	)
})
