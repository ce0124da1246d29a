package run

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/John-Robertt/av1q/internal/app/queue"
	"github.com/John-Robertt/av1q/internal/app/resume"
	"github.com/John-Robertt/av1q/internal/config"
	"github.com/John-Robertt/av1q/internal/domain"
	"github.com/John-Robertt/av1q/internal/encoder"
	"github.com/John-Robertt/av1q/internal/infra/chunkstore"
	"github.com/John-Robertt/av1q/internal/infra/donestore"
	"github.com/John-Robertt/av1q/internal/infra/logx"
	"github.com/John-Robertt/av1q/internal/infra/media"
)

// Deps 是 Execute 的外部协作方；nil 字段按 eff 装配真实实现（ffmpeg/ffprobe/内置编码器/done store）。
type Deps struct {
	Segmenter queue.Segmenter
	Prober    queue.Prober
	Done      donestore.Reader
	Registry  *encoder.Registry

	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d Deps) registry() encoder.Registry {
	if d.Registry != nil {
		return *d.Registry
	}
	return encoder.Default()
}

// doneReader 返回 done store 以及用完后的释放函数。
func (d Deps) doneReader(eff config.EffectiveConfig) (donestore.Reader, func()) {
	if d.Done != nil {
		return d.Done, func() {}
	}
	if eff.DoneStore.Kind == config.DoneStoreRedis {
		r := donestore.NewRedis(eff.DoneStore.RedisAddr, eff.DoneStore.RedisKey)
		return r, func() { _ = r.Close() }
	}
	return donestore.File{Root: eff.Temp}, func() {}
}

// Execute 执行一次会话：得到有序队列（新建或 resume），返回对外稳定的 QueueReport。
//
// 致命错误（structural/persistence/其他构造失败）时：abort 恰好被调用一次，
// 返回带 error_code/error_msg 的报告与 ok=false。Execute 自己从不退出进程。
func Execute(ctx context.Context, eff config.EffectiveConfig, deps Deps, obs Observer, abort Aborter) (domain.QueueReport, bool) {
	if obs == nil {
		obs = nopObserver{}
	}
	started := deps.now()
	runID := newRunID(started)
	ctx = logx.WithRunID(ctx, runID)
	log := logx.FromCtx(ctx)

	obs.OnStart(eff, runID)

	rr := domain.QueueReport{
		Root:      eff.Temp,
		RunID:     runID,
		Resumed:   eff.Resume,
		StartedAt: started,
	}

	fail := func(err error) (domain.QueueReport, bool) {
		rr.ErrorCode = errorCode(err)
		rr.ErrorMsg = err.Error()
		rr.FinishedAt = deps.now()
		rr.Finalize(0)
		log.Error().Err(err).Str("error_code", rr.ErrorCode).Msg("queue setup failed")
		if abort != nil {
			abort.Abort(err)
		}
		return rr, false
	}

	reg := deps.registry()
	enc, ok := reg.Get(eff.Encoder)
	if !ok {
		return fail(&config.Error{Code: config.ErrCodeInvalid, Err: fmt.Errorf("未知 encoder：%q", eff.Encoder)})
	}

	done, release := deps.doneReader(eff)
	defer release()

	coord := &resume.Coordinator{
		Builder:      newBuilder(eff, deps, enc, obs),
		Store:        chunkstore.New(eff.Temp),
		Done:         done,
		RunID:        runID,
		Encoder:      enc.Name(),
		StrictResume: eff.StrictResume,
	}

	log.Info().
		Str("root", eff.Temp).
		Str("encoder", enc.Name()).
		Bool("resume", eff.Resume).
		Ints("splits", eff.SplitFrames).
		Msg("obtaining chunk queue")

	out, err := coord.Obtain(ctx, eff.Input, eff.Resume, eff.SplitFrames)
	if err != nil {
		return fail(err)
	}
	for _, p := range out.Phases {
		obs.OnPhaseDone(p.Name, p.Fields, p.Dur)
	}

	rr.Chunks = domain.ChunkResults(out.Queue)
	rr.SourceChanged = out.SourceChanged
	rr.FinishedAt = deps.now()
	rr.Finalize(len(out.Loaded))
	return rr, true
}

// newBuilder 装配非 resume 路径的构造器；segment 阶段事件由 OnSegmented 发出。
func newBuilder(eff config.EffectiveConfig, deps Deps, enc encoder.Encoder, obs Observer) *queue.Builder {
	seg := deps.Segmenter
	if seg == nil {
		seg = media.FFmpegSegmenter{}
	}
	prober := deps.Prober
	if prober == nil {
		prober = media.FFprobe{}
	}

	b := &queue.Builder{
		Root:       eff.Temp,
		SegmentExt: eff.SegmentExt,
		Segmenter:  seg,
		Factory: &queue.Factory{
			Root:      eff.Temp,
			PixFormat: eff.PixFormat,
			Encoder:   enc,
			Options:   encoder.Options{Passes: eff.Passes, Params: eff.VideoParams},
			Prober:    prober,
		},
		OnChunk: obs.OnChunkBuilt,
	}

	segStarted := time.Now()
	b.OnSegmented = func(files []domain.SegmentFile) {
		obs.OnPhaseDone("segment", map[string]any{"files": len(files)}, time.Since(segStarted))
	}
	return b
}

// Show 只读地加载已保存队列，并按 done store 计算仍待编码的部分。不会写任何文件。
func Show(ctx context.Context, eff config.EffectiveConfig, deps Deps) (domain.QueueReport, error) {
	started := deps.now()
	store := chunkstore.New(eff.Temp)
	doc, err := store.Load()
	if err != nil {
		return domain.QueueReport{}, err
	}

	done, release := deps.doneReader(eff)
	defer release()
	set, err := done.ReadDone(ctx)
	if err != nil {
		return domain.QueueReport{}, domain.Persistence("", fmt.Errorf("读取完成记录失败：%w", err))
	}

	pending := resume.Pending(doc.Chunks, set)
	rr := domain.QueueReport{
		Root:      eff.Temp,
		RunID:     doc.RunID,
		Resumed:   true,
		StartedAt: started,
		Chunks:    domain.ChunkResults(pending),
	}
	rr.SourceChanged, _ = resume.CheckSource(doc.Source, eff.Input)
	rr.FinishedAt = deps.now()
	rr.Finalize(len(doc.Chunks))
	return rr, nil
}

// errorCode 把错误映射为报告里的 error_code。
func errorCode(err error) string {
	if k := domain.FatalKind(err); k != "" {
		return k
	}
	if c := config.Code(err); c != "" {
		return c
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrCodeCanceled
	}
	return domain.ErrCodeInternal
}

func newRunID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
