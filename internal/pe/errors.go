package pe

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRecord reports a descriptor buffer of the wrong length.
	ErrMalformedRecord = errors.New("导入描述符记录格式错误")
	// ErrUnresolvableAddress reports an RVA outside readable image content.
	ErrUnresolvableAddress = errors.New("RVA无法映射到映像内容")
	// ErrMissingImportDirectory reports an image without import directory.
	ErrMissingImportDirectory = errors.New("PE文件没有导入表")
	// ErrSectionLayout reports overlapping or otherwise unusable section layout.
	ErrSectionLayout = errors.New("节区布局错误")
	// ErrHeaderSpace reports that the section table cannot grow.
	ErrHeaderSpace = errors.New("节区头表空间不足")
)

// AddressError describes a failed RVA lookup.
type AddressError struct {
	RVA  uint32
	Size uint32
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("RVA 0x%X (%d 字节) 不在任何节区内", e.RVA, e.Size)
}

// Unwrap lets errors.Is match ErrUnresolvableAddress.
func (e *AddressError) Unwrap() error {
	return ErrUnresolvableAddress
}
