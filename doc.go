// Package arena 是一個雙人對戰競技場的房間服務器。
//
// 玩家透過 WebSocket 連線，以四碼房間碼配對；伺服器負責產生地圖、
// 分配出生點、保存房間狀態並轉發雙方事件。戰鬥判定（命中、死亡）
// 由客戶端決定，伺服器只做廣播。
//
// # 房間生命週期
//
//   - 創建：產生 20×15 的格子地圖（邊框牆 + 12 個隨機牆形狀），創建者為一隊
//   - 加入：第二位玩家為二隊，雙方收到地圖、玩家表、已揭露的牆，遊戲開始
//   - 重新開始：重新產生地圖並重新配置出生點
//   - 離開：最後一人斷線時房間立即刪除
//
// # 牆群組
//
// 同一次形狀放置的格子屬於同一群組。任一格被擊中時，整個群組一次廣播
// 給房間所有人，之後不再重複廣播。
//
// # 線上協議
//
// 每則訊息都是 {"event": "...", "data": ...}。連線建立後伺服器先送出
// connected 事件告知玩家 ID。
//
//	{"event":"createGame"}
//	{"event":"joinGame","data":"K3F9"}
//	{"event":"playerMovement","data":{"x":120,"y":300,"rotation":0.5}}
//	{"event":"wallHit","data":{"x":205,"y":130}}
//
// # 端點
//
//   - /ws：遊戲 WebSocket
//   - /health、/stats、/rooms/{code}：維運查詢
//   - /metrics：Prometheus 指標
//
// # 配置選項
//
//   - -config：YAML 配置檔案（預設 config.yaml，不存在時使用預設值）
//   - -port：服務監聽端口（預設 3000）
//   - -log-level：日誌級別（debug/info/warn/error）
//   - -log-format：日誌格式（text/json）
//   - REDIS_ADDR：設定後啟用 Redis 生命週期通知
package arena
