package sse

import (
	"bytes"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

var _ = Describe("Reader", func() {
	Describe("Next", func() {
		Context("with chat stream records", func() {
			It("parses a single data record", func() {
				r := NewReader(strings.NewReader("data: {\"type\":\"end\"}\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal(`{"type":"end"}`))
				Expect(ev.HasData).To(BeTrue())
				Expect(ev.Type).To(BeEmpty())
				Expect(ev.ID).To(BeEmpty())

				ev, err = r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})

			It("parses a full turn in order", func() {
				input := "data: {\"type\":\"checkpoint\",\"checkpoint_id\":\"abc\"}\n\n" +
					"data: {\"type\":\"content\",\"content\":\"Hi\"}\n\n" +
					"data: {\"type\":\"end\"}\n\n"
				r := NewReader(strings.NewReader(input))

				var datas []string
				for {
					ev, err := r.Next()
					Expect(err).NotTo(HaveOccurred())
					if ev == nil {
						break
					}
					datas = append(datas, ev.Data)
				}

				Expect(datas).To(Equal([]string{
					`{"type":"checkpoint","checkpoint_id":"abc"}`,
					`{"type":"content","content":"Hi"}`,
					`{"type":"end"}`,
				}))
			})

			It("parses event type and id", func() {
				r := NewReader(strings.NewReader("event: chunk\nid: 42\ndata: hello\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Type).To(Equal("chunk"))
				Expect(ev.ID).To(Equal("42"))
				Expect(ev.Data).To(Equal("hello"))
			})

			It("joins multiple data lines with newline", func() {
				r := NewReader(strings.NewReader("data: line one\ndata: line two\ndata: line three\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("line one\nline two\nline three"))
			})

			It("handles data field with no space after colon", func() {
				r := NewReader(strings.NewReader("data:no-space\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("no-space"))
			})
		})

		Context("with records that carry no data", func() {
			It("yields event-only records without HasData", func() {
				r := NewReader(strings.NewReader("event: ping\n\ndata: x\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Type).To(Equal("ping"))
				Expect(ev.HasData).To(BeFalse())

				ev, err = r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("x"))
			})

			It("ignores comment lines", func() {
				r := NewReader(strings.NewReader(": keep-alive\n\ndata: hello\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("hello"))
			})

			It("ignores unknown fields", func() {
				r := NewReader(strings.NewReader("retry: 3000\nfoo: bar\ndata: hello\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("hello"))
			})

			It("treats a bare field name as an empty value", func() {
				r := NewReader(strings.NewReader("data\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.HasData).To(BeTrue())
				Expect(ev.Data).To(BeEmpty())
			})
		})

		Context("edge cases", func() {
			It("returns nil on empty input", func() {
				r := NewReader(strings.NewReader(""))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})

			It("returns nil on input with only blank lines", func() {
				r := NewReader(strings.NewReader("\n\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})

			It("yields an event when the stream ends without a trailing blank line", func() {
				r := NewReader(strings.NewReader("data: unterminated"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("unterminated"))

				ev, err = r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})

			It("preserves unicode payloads", func() {
				r := NewReader(strings.NewReader("data: {\"content\":\"🔍 ok\"}\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(ContainSubstring("🔍 ok"))
			})
		})
	})

	Describe("tee", func() {
		It("copies all bytes verbatim including delimiters and comments", func() {
			input := ": hello\ndata: first\n\ndata: second\n\n"
			dst := &bytes.Buffer{}
			r := NewTeeReader(strings.NewReader(input), dst)

			for {
				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				if ev == nil {
					break
				}
			}

			Expect(dst.String()).To(Equal(input))
		})

		It("surfaces tee write failures", func() {
			r := NewTeeReader(strings.NewReader("data: x\n\n"), failingWriter{})

			_, err := r.Next()
			Expect(err).To(MatchError("disk full"))
		})
	})
})
