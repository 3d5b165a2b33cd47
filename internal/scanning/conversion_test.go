package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	return img
}

var _ = Describe("toPNG", func() {
	It("passes PNG data through", func() {
		var buf bytes.Buffer
		Expect(png.Encode(&buf, testImage())).To(Succeed())

		out, err := toPNG(buf.Bytes(), "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(buf.Bytes()))
	})

	It("converts JPEG to PNG", func() {
		var buf bytes.Buffer
		Expect(jpeg.Encode(&buf, testImage(), nil)).To(Succeed())

		out, err := toPNG(buf.Bytes(), "IMAGE/JPEG; charset=binary")
		Expect(err).NotTo(HaveOccurred())
		_, format, err := image.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(format).To(Equal("png"))
	})

	It("treats a missing content type as JPEG", func() {
		var buf bytes.Buffer
		Expect(jpeg.Encode(&buf, testImage(), nil)).To(Succeed())

		_, err := toPNG(buf.Bytes(), "")
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects unreadable images", func() {
		_, err := toPNG([]byte("not an image"), "image/jpeg")
		Expect(err).To(MatchError(ContainSubstring("decoding image/jpeg image")))
	})
})

var _ = Describe("isHEIC", func() {
	It("detects the HEIC ftyp brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEIC(data, "application/octet-stream")).To(BeTrue())
	})

	It("detects HEIF content types", func() {
		Expect(isHEIC(nil, "image/heif")).To(BeTrue())
	})

	It("ignores other data", func() {
		Expect(isHEIC([]byte("short"), "image/jpeg")).To(BeFalse())
	})
})
