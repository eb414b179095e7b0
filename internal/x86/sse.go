// Completion: 100% - SSE encodings complete
package x86

// sse.go - SSE/SSE2/SSE4.1 encodings used by the XMM register cache
//
// Loads take (dst register, src memory), stores take (dst memory, src register),
// matching Intel operand order. Memory operands are always [base + disp].

const (
	p66 = 0x66
	pF3 = 0xF3
)

// MovapsLoad emits MOVAPS xmm, m128 (0F 28 /r)
func (o *Out) MovapsLoad(dst XMM, src Mem) {
	o.emit(Inst{Op: OpMovaps, Dst: xmmOp(dst), Src: memOp(src, 16)},
		encodeRM(0, []byte{0x0F, 0x28}, uint8(dst), src))
}

// MovapsStore emits MOVAPS m128, xmm (0F 29 /r)
func (o *Out) MovapsStore(dst Mem, src XMM) {
	o.emit(Inst{Op: OpMovaps, Dst: memOp(dst, 16), Src: xmmOp(src)},
		encodeRM(0, []byte{0x0F, 0x29}, uint8(src), dst))
}

// MovapsReg emits MOVAPS xmm, xmm
func (o *Out) MovapsReg(dst, src XMM) {
	o.emit(Inst{Op: OpMovaps, Dst: xmmOp(dst), Src: xmmOp(src)},
		encodeRR(0, []byte{0x0F, 0x28}, uint8(dst), uint8(src)))
}

// MovdqaLoad emits MOVDQA xmm, m128 (66 0F 6F /r)
func (o *Out) MovdqaLoad(dst XMM, src Mem) {
	o.emit(Inst{Op: OpMovdqa, Dst: xmmOp(dst), Src: memOp(src, 16)},
		encodeRM(p66, []byte{0x0F, 0x6F}, uint8(dst), src))
}

// MovdqaStore emits MOVDQA m128, xmm (66 0F 7F /r)
func (o *Out) MovdqaStore(dst Mem, src XMM) {
	o.emit(Inst{Op: OpMovdqa, Dst: memOp(dst, 16), Src: xmmOp(src)},
		encodeRM(p66, []byte{0x0F, 0x7F}, uint8(src), dst))
}

// MovdqaReg emits MOVDQA xmm, xmm
func (o *Out) MovdqaReg(dst, src XMM) {
	o.emit(Inst{Op: OpMovdqa, Dst: xmmOp(dst), Src: xmmOp(src)},
		encodeRR(p66, []byte{0x0F, 0x6F}, uint8(dst), uint8(src)))
}

// MovssLoad emits MOVSS xmm, m32 (F3 0F 10 /r). Lanes 1-3 are zeroed.
func (o *Out) MovssLoad(dst XMM, src Mem) {
	o.emit(Inst{Op: OpMovss, Dst: xmmOp(dst), Src: memOp(src, 4)},
		encodeRM(pF3, []byte{0x0F, 0x10}, uint8(dst), src))
}

// MovssStore emits MOVSS m32, xmm (F3 0F 11 /r)
func (o *Out) MovssStore(dst Mem, src XMM) {
	o.emit(Inst{Op: OpMovss, Dst: memOp(dst, 4), Src: xmmOp(src)},
		encodeRM(pF3, []byte{0x0F, 0x11}, uint8(src), dst))
}

// MovlpsLoad emits MOVLPS xmm, m64 (0F 12 /r). Lanes 2-3 are kept.
func (o *Out) MovlpsLoad(dst XMM, src Mem) {
	o.emit(Inst{Op: OpMovlps, Dst: xmmOp(dst), Src: memOp(src, 8)},
		encodeRM(0, []byte{0x0F, 0x12}, uint8(dst), src))
}

// MovlpsStore emits MOVLPS m64, xmm (0F 13 /r)
func (o *Out) MovlpsStore(dst Mem, src XMM) {
	o.emit(Inst{Op: OpMovlps, Dst: memOp(dst, 8), Src: xmmOp(src)},
		encodeRM(0, []byte{0x0F, 0x13}, uint8(src), dst))
}

// Movhlps emits MOVHLPS xmm, xmm (0F 12 /r, register form)
func (o *Out) Movhlps(dst, src XMM) {
	o.emit(Inst{Op: OpMovhlps, Dst: xmmOp(dst), Src: xmmOp(src)},
		encodeRR(0, []byte{0x0F, 0x12}, uint8(dst), uint8(src)))
}

// Shufps emits SHUFPS xmm, xmm, imm8 (0F C6 /r ib)
func (o *Out) Shufps(dst, src XMM, imm uint8) {
	o.emit(Inst{Op: OpShufps, Dst: xmmOp(dst), Src: xmmOp(src), Imm: int64(imm), HasImm: true},
		encodeRR(0, []byte{0x0F, 0xC6}, uint8(dst), uint8(src), imm))
}

// MovqLoad emits MOVQ xmm, m64 (F3 0F 7E /r). Lanes 2-3 are zeroed.
func (o *Out) MovqLoad(dst XMM, src Mem) {
	o.emit(Inst{Op: OpMovq, Dst: xmmOp(dst), Src: memOp(src, 8)},
		encodeRM(pF3, []byte{0x0F, 0x7E}, uint8(dst), src))
}

// MovdStore emits MOVD m32, xmm (66 0F 7E /r)
func (o *Out) MovdStore(dst Mem, src XMM) {
	o.emit(Inst{Op: OpMovd, Dst: memOp(dst, 4), Src: xmmOp(src)},
		encodeRM(p66, []byte{0x0F, 0x7E}, uint8(src), dst))
}

// PsradImm emits PSRAD xmm, imm8 (66 0F 72 /4 ib)
func (o *Out) PsradImm(dst XMM, imm uint8) {
	o.emit(Inst{Op: OpPsrad, Dst: xmmOp(dst), Imm: int64(imm), HasImm: true},
		encodeRR(p66, []byte{0x0F, 0x72}, 4, uint8(dst), imm))
}

// Pxor emits PXOR xmm, xmm (66 0F EF /r)
func (o *Out) Pxor(dst, src XMM) {
	o.emit(Inst{Op: OpPxor, Dst: xmmOp(dst), Src: xmmOp(src)},
		encodeRR(p66, []byte{0x0F, 0xEF}, uint8(dst), uint8(src)))
}

// Punpcklqdq emits PUNPCKLQDQ xmm, xmm (66 0F 6C /r)
func (o *Out) Punpcklqdq(dst, src XMM) {
	o.emit(Inst{Op: OpPunpcklqdq, Dst: xmmOp(dst), Src: xmmOp(src)},
		encodeRR(p66, []byte{0x0F, 0x6C}, uint8(dst), uint8(src)))
}

// PunpckhqdqLoad emits PUNPCKHQDQ xmm, m128 (66 0F 6D /r)
func (o *Out) PunpckhqdqLoad(dst XMM, src Mem) {
	o.emit(Inst{Op: OpPunpckhqdq, Dst: xmmOp(dst), Src: memOp(src, 16)},
		encodeRM(p66, []byte{0x0F, 0x6D}, uint8(dst), src))
}

// Movq2dq emits MOVQ2DQ xmm, mm (F3 0F D6 /r)
func (o *Out) Movq2dq(dst XMM, src MMX) {
	o.emit(Inst{Op: OpMovq2dq, Dst: xmmOp(dst), Src: mmxOp(src)},
		encodeRR(pF3, []byte{0x0F, 0xD6}, uint8(dst), uint8(src)))
}

// MovqStoreMMX emits MOVQ m64, mm (0F 7F /r)
func (o *Out) MovqStoreMMX(dst Mem, src MMX) {
	o.emit(Inst{Op: OpMovqMMX, Dst: memOp(dst, 8), Src: mmxOp(src)},
		encodeRM(0, []byte{0x0F, 0x7F}, uint8(src), dst))
}

// MovqLoadMMX emits MOVQ mm, m64 (0F 6F /r)
func (o *Out) MovqLoadMMX(dst MMX, src Mem) {
	o.emit(Inst{Op: OpMovqMMX, Dst: mmxOp(dst), Src: memOp(src, 8)},
		encodeRM(0, []byte{0x0F, 0x6F}, uint8(dst), src))
}

// ExtractpsStore emits EXTRACTPS m32, xmm, imm8 (66 0F 3A 17 /r ib). SSE4.1.
func (o *Out) ExtractpsStore(dst Mem, src XMM, lane uint8) {
	o.emit(Inst{Op: OpExtractps, Dst: memOp(dst, 4), Src: xmmOp(src), Imm: int64(lane & 3), HasImm: true},
		encodeRM(p66, []byte{0x0F, 0x3A, 0x17}, uint8(src), dst, lane&3))
}

// SarMem32Imm emits SAR dword [m], imm8 (C1 /7 ib)
func (o *Out) SarMem32Imm(dst Mem, imm uint8) {
	o.emit(Inst{Op: OpSar32, Dst: memOp(dst, 4), Imm: int64(imm), HasImm: true},
		encodeRM(0, []byte{0xC1}, 7, dst, imm))
}

// MovMem32Imm emits MOV dword [m], imm32 (C7 /0 id)
func (o *Out) MovMem32Imm(dst Mem, imm uint32) {
	o.emit(Inst{Op: OpMov32, Dst: memOp(dst, 4), Imm: int64(imm), HasImm: true},
		encodeRM(0, []byte{0xC7}, 0, dst, byte(imm), byte(imm>>8), byte(imm>>16), byte(imm>>24)))
}

// Emms emits EMMS (0F 77)
func (o *Out) Emms() {
	o.emit(Inst{Op: OpEmms}, []byte{0x0F, 0x77})
}
