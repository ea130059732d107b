package disk

import (
	"sync"

	"github.com/jobala/seqdb/logging"
)

const BLOCK_QUEUE_SIZE = 16

func NewScheduler(fileManager *FileManager) *DiskScheduler {
	ds := &DiskScheduler{
		reqCh:       make(chan DiskReq, 100),
		blockQueue:  make(map[blockKey]chan DiskReq),
		fileManager: fileManager,
		done:        make(chan struct{}),
	}

	go ds.handleDiskReq()
	return ds
}

func NewRequest(file *File, blockNo uint32, data []byte, isWrite bool) DiskReq {
	return DiskReq{
		File:    file,
		BlockNo: blockNo,
		Data:    data,
		Write:   isWrite,
		RespCh:  make(chan DiskResp, 1),
	}
}

// Schedule queues req and returns the channel its response is delivered on.
// Requests for the same block are served in the order they were scheduled.
func (ds *DiskScheduler) Schedule(req DiskReq) <-chan DiskResp {
	ds.reqCh <- req
	return req.RespCh
}

// Do schedules req and waits for its response.
func (ds *DiskScheduler) Do(req DiskReq) DiskResp {
	return <-ds.Schedule(req)
}

func (ds *DiskScheduler) FileManager() *FileManager {
	return ds.fileManager
}

// Close stops accepting requests once the queued ones are dispatched.
func (ds *DiskScheduler) Close() {
	ds.closeOnce.Do(func() {
		close(ds.reqCh)
		<-ds.done
	})
}

func (ds *DiskScheduler) handleDiskReq() {
	defer close(ds.done)

	for req := range ds.reqCh {
		key := blockKey{file: req.File.Name(), blockNo: req.BlockNo}

		// enqueueing under the lock keeps a worker from retiring between
		// the lookup and the send
		ds.blockQueueMu.Lock()
		queue, ok := ds.blockQueue[key]
		if !ok {
			queue = make(chan DiskReq, BLOCK_QUEUE_SIZE)
			ds.blockQueue[key] = queue
			go ds.blockWorker(key, queue)
		}
		queue <- req
		ds.blockQueueMu.Unlock()
	}
}

func (ds *DiskScheduler) blockWorker(key blockKey, reqQueue chan DiskReq) {
	for {
		select {
		case req := <-reqQueue:
			resp := ds.serve(req)
			if resp.Err != nil {
				logging.WithBlock(req.File.Name(), req.BlockNo).Debug("disk request failed", "write", req.Write, "error", resp.Err)
			}
			req.RespCh <- resp

		default:
			ds.blockQueueMu.Lock()
			if len(reqQueue) > 0 {
				ds.blockQueueMu.Unlock()
				continue
			}
			delete(ds.blockQueue, key)
			ds.blockQueueMu.Unlock()
			return
		}
	}
}

func (ds *DiskScheduler) serve(req DiskReq) DiskResp {
	if req.Write {
		if err := ds.fileManager.WriteBlock(req.File, req.BlockNo, req.Data); err != nil {
			return DiskResp{Err: err}
		}
		return DiskResp{Success: true}
	}

	buf := make([]byte, ds.fileManager.BlockSize())
	if err := ds.fileManager.ReadBlock(req.File, req.BlockNo, buf); err != nil {
		return DiskResp{Err: err}
	}
	return DiskResp{Success: true, Data: buf}
}

type DiskScheduler struct {
	reqCh       chan DiskReq
	fileManager *FileManager

	blockQueue   map[blockKey]chan DiskReq
	blockQueueMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

type blockKey struct {
	file    string
	blockNo uint32
}

type DiskReq struct {
	File    *File
	BlockNo uint32
	Data    []byte
	Write   bool
	RespCh  chan DiskResp
}

type DiskResp struct {
	Success bool
	Data    []byte
	Err     error
}
